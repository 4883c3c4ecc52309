package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT, os.Interrupt)
}

// Serve runs h on addr until ctx is done, then shuts the server down. It
// returns once the listener is bound.
func Serve(ctx context.Context, name, addr string, h http.Handler, logger *zap.SugaredLogger) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s server: %w", name, err)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("%s server err: %s", name, err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("shutdown %s server err: %s", name, err)
		}
		logger.Infof("%s server shutdown", name)
	}()
	logger.Infof("%s server listening on %s", name, ln.Addr())

	return ln.Addr(), nil
}

// ParseAddr accepts ":port", "host:port" or a bare port number.
func ParseAddr(s string) (string, error) {
	if s == "" {
		return "", errors.New("address can not be empty")
	}
	var port int
	if _, err := fmt.Sscanf(s, "%d", &port); err == nil && fmt.Sprint(port) == s {
		return fmt.Sprintf(":%d", port), nil
	}
	return s, nil
}
