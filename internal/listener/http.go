package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"
)

const DefaultShutdownTimeout = 5 * time.Second

// HTTPListener serves the HTTP surface, websocket upgrades included, until
// its context ends.
type HTTPListener struct {
	addr    string
	handler http.Handler
	cm      *ConnectionManager
}

func NewHTTPListener(addr string, handler http.Handler, cm *ConnectionManager) *HTTPListener {
	return &HTTPListener{
		addr:    addr,
		handler: handler,
		cm:      cm,
	}
}

func (l *HTTPListener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("address %s is already in use (another server running?)", l.addr)
		}
		return fmt.Errorf("listening on %s: %w", l.addr, err)
	}

	return l.serve(ctx, ln)
}

func (l *HTTPListener) serve(ctx context.Context, ln net.Listener) error {
	svr := &http.Server{
		Handler:           l.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	slog.InfoContext(ctx, "listening for http", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- svr.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if l.cm != nil {
			l.cm.Stop()
		}
		return fmt.Errorf("serving http on %s: %w", l.addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	if l.cm != nil {
		l.cm.Stop()
	}
	if err := svr.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	<-errCh

	return nil
}
