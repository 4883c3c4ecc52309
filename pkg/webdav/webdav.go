// Package webdav exposes the capture output directory over WebDAV.
package webdav

import (
	"context"
	"net"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"v4l2jpeg/pkg/utils"
)

// Handler serves dir read-write over WebDAV, logging failed requests.
func Handler(dir string, logger *zap.SugaredLogger) http.Handler {
	return &webdav.Handler{
		FileSystem: webdav.Dir(dir),
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logger.Errorf("WEBDAV [%s]: %s, err: %s", r.Method, r.URL, err)
			}
		},
	}
}

// Serve shares dir on addr until ctx is done.
func Serve(ctx context.Context, addr, dir string, logger *zap.SugaredLogger) (net.Addr, error) {
	return utils.Serve(ctx, "webdav", addr, Handler(dir, logger), logger)
}
