// Package status serves a read-only view of a running capture session.
package status

import (
	"context"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"v4l2jpeg/pkg/capture"
	"v4l2jpeg/pkg/utils"
	"v4l2jpeg/pkg/utils/ps"
)

// Source is the session being reported on.
type Source interface {
	ID() string
	State() string
	Format() capture.Format
	Stats() *capture.Stats
}

type Session struct {
	ID     string                `json:"id"`
	State  string                `json:"state"`
	Format string                `json:"format"`
	Width  uint32                `json:"width"`
	Height uint32                `json:"height"`
	Stats  capture.StatsSnapshot `json:"stats"`
	CPU    *ps.CPU               `json:"cpu,omitempty"`
	Memory *ps.Memory            `json:"memory,omitempty"`
	Disk   *ps.Disk              `json:"disk,omitempty"`

	// OutputBytes is the size of the files in the output directory.
	OutputBytes int64 `json:"outputBytes,omitempty"`
}

type Server struct {
	src       Source
	hub       *Hub
	outputDir string
	logger    *zap.SugaredLogger
}

// New builds the status router. outputDir, when set, is reported in the
// disk usage of GET /api/session.
func New(src Source, hub *Hub, outputDir string, logger *zap.SugaredLogger) *gin.Engine {
	s := &Server{src: src, hub: hub, outputDir: outputDir, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(s.accessLog())
	r.Use(gin.Recovery())
	r.Use(utils.Cors())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})

	sessionRouter := r.Group("/api/session")
	sessionRouter.GET("", s.getSession)
	sessionRouter.GET("/frame", s.latestFrame)
	sessionRouter.GET("/stream", s.realtimeVideo)

	return r
}

// Serve runs the status router on addr until ctx is done.
func Serve(ctx context.Context, addr string, h http.Handler, logger *zap.SugaredLogger) (net.Addr, error) {
	return utils.Serve(ctx, "status", addr, h, logger)
}

// accessLog logs through zap; gin's default logger writes to stdout, which
// may carry the frame stream.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debugf("STATUS [%s] %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) getSession(c *gin.Context) {
	f := s.src.Format()
	res := Session{
		ID:     s.src.ID(),
		State:  s.src.State(),
		Format: f.PixelFormat.String(),
		Width:  f.Width,
		Height: f.Height,
		Stats:  s.src.Stats().Snapshot(),
	}
	if cpu, err := ps.CPUStatus(); err == nil {
		res.CPU = &cpu
	} else {
		s.logger.Warnf("cpu status: %s", err)
	}
	if m, err := ps.MemoryStatus(); err == nil {
		res.Memory = &m
	} else {
		s.logger.Warnf("memory status: %s", err)
	}
	if s.outputDir != "" {
		if d, err := ps.DiskStatus(s.outputDir); err == nil {
			res.Disk = &d
		} else {
			s.logger.Warnf("disk status of %s: %s", s.outputDir, err)
		}
		if size, err := ps.DirDiskUsage(s.outputDir); err == nil {
			res.OutputBytes = size
		} else {
			s.logger.Warnf("size of %s: %s", s.outputDir, err)
		}
	}

	c.JSON(http.StatusOK, jsend.Success(res))
}

func (s *Server) latestFrame(c *gin.Context) {
	frame := s.hub.Latest()
	if frame == nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("no frame captured yet"))
		return
	}
	c.Data(http.StatusOK, "image/jpeg", frame)
}

func (s *Server) realtimeVideo(c *gin.Context) {
	frames, cancel := s.hub.Subscribe()
	defer cancel()

	mimeWriter := multipart.NewWriter(c.Writer)
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+mimeWriter.Boundary())
	c.Status(http.StatusOK)
	partHeader := make(textproto.MIMEHeader)
	partHeader.Add("Content-Type", "image/jpeg")

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			partWriter, err := mimeWriter.CreatePart(partHeader)
			if err != nil {
				s.logger.Warnf("failed to create multi-part writer: %s", err)
				return
			}
			if _, err := partWriter.Write(frame); err != nil {
				s.logger.Warnf("failed to write image: %s", err)
				return
			}
			c.Writer.Flush()
		}
	}
}
