package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"v4l2jpeg/pkg/capture"
	"v4l2jpeg/pkg/config"
	"v4l2jpeg/pkg/device"
	"v4l2jpeg/pkg/sink"
	"v4l2jpeg/pkg/status"
	"v4l2jpeg/pkg/transcode"
	"v4l2jpeg/pkg/utils"
	"v4l2jpeg/pkg/webdav"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		utils.GetLogger().Error(err)
		_ = utils.GetLogger().Sync()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "v4l2jpeg",
		Short:         "Capture JPEG frames from a V4L2 device",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), c)
		},
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./v4l2jpeg.yaml)")
	if err := config.AddFlags(rootCmd, v); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			data, err := c.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	return rootCmd
}

func run(parent context.Context, c config.Config) error {
	logger := utils.NewLogger(c.LogLevel)
	utils.SetLogger(logger)
	defer logger.Sync()

	capCfg, err := c.Capture()
	if err != nil {
		return err
	}

	ctx, stop := utils.SignalContext(parent)
	defer stop()

	var hub *status.Hub
	if c.StatusAddr != "" {
		hub = status.NewHub()
	}

	var session *capture.Session
	session, err = capture.NewSession(capture.Options{
		Config: capCfg,
		Open:   device.Opener(logger.Named("device")),
		NewTranscoder: func(f capture.Format) (capture.Transcoder, error) {
			return transcode.New(f, c.Quality)
		},
		NewSink: func(f capture.Format) (capture.Sink, error) {
			return newSink(c, f, capCfg.FPS, session.ID(), hub, logger)
		},
		Logger: logger.Named("capture"),
	})
	if err != nil {
		return err
	}

	outputDir := ""
	if c.Output != sink.StdoutTarget {
		outputDir = filepath.Dir(c.Output)
		if err := os.MkdirAll(outputDir, sink.DefaultDirPerm); err != nil {
			return err
		}
	}
	if c.StatusAddr != "" {
		addr, err := utils.ParseAddr(c.StatusAddr)
		if err != nil {
			return err
		}
		if _, err := status.Serve(ctx, addr, status.New(session, hub, outputDir, logger.Named("status")), logger); err != nil {
			return err
		}
	}
	if c.WebdavAddr != "" {
		if outputDir == "" {
			return fmt.Errorf("webdav needs a file output, not %q", c.Output)
		}
		addr, err := utils.ParseAddr(c.WebdavAddr)
		if err != nil {
			return err
		}
		if _, err := webdav.Serve(ctx, addr, outputDir, logger.Named("webdav")); err != nil {
			return err
		}
	}

	logger.Infof("session %s: %s %dx%d %s, %d frames at %d fps to %s",
		session.ID(), capCfg.Device, capCfg.Width, capCfg.Height, capCfg.PixelFormat, capCfg.Count, capCfg.FPS, c.Output)

	return session.Run(ctx)
}

func newSink(c config.Config, f capture.Format, fps int, sessionID string, hub *status.Hub, logger *zap.SugaredLogger) (capture.Sink, error) {
	out, err := sink.New(sink.Options{
		Output:    c.Output,
		Multipart: c.Multipart,
		Boundary:  c.Boundary,
		Manifest:  c.Manifest,
		SessionID: sessionID,
	}, f, fps, logger.Named("sink"))
	if err != nil {
		return nil, err
	}
	if hub == nil {
		return out, nil
	}
	return sink.Tee(out, hub), nil
}

