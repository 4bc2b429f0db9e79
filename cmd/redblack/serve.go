package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/secmsg/redblack-go/internal/config"
	"github.com/secmsg/redblack-go/pkg/redblack"
	"github.com/secmsg/redblack-go/pkg/redblack/logging"
	"github.com/secmsg/redblack-go/pkg/redblack/session"
	"github.com/secmsg/redblack-go/pkg/redblack/wsconn"
)

const shutdownTimeout = 10 * time.Second

// newRouter serves sessions on /rpc and Prometheus metrics on /metrics.
func newRouter(logger logging.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/rpc", func(w http.ResponseWriter, req *http.Request) {
		serveSession(w, req, logger)
	})
	return r
}

func serveSession(w http.ResponseWriter, r *http.Request, logger logging.Logger) {
	ctx := r.Context()
	conn, err := wsconn.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(ctx, "upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	s, err := session.Accept(ctx, conn, session.WithLogger(logger.With("remote", r.RemoteAddr)))
	if err != nil {
		logger.Warn(ctx, "session start failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	err = s.Serve(ctx, echo)
	switch {
	case wsconn.IsClosed(err), errors.Is(err, context.Canceled):
		logger.Info(ctx, "session ended", "session", s.ID().String())
	default:
		logger.Warn(ctx, "session dropped", "session", s.ID().String(), "error", err)
	}
}

// echo answers every request with its method and params.
func echo(_ context.Context, req redblack.Message) (any, error) {
	params := req.Params
	if len(params) == 0 {
		params = json.RawMessage("[]")
	}
	return map[string]any{"method": req.Method, "params": params}, nil
}

func (c *cli) serve(ctx context.Context, args []string) error {
	fs := c.flags("serve")
	addr := fs.String("addr", c.cfg.ListenAddr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	srv := &http.Server{
		Handler:           newRouter(c.logger),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info(ctx, "listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	c.logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (c *cli) call(ctx context.Context, args []string) error {
	fs := c.flags("call")
	url := fs.String("url", "ws://"+c.cfg.ListenAddr+"/rpc", "session endpoint")
	keyFile := fs.String("key", c.cfg.KeyFile, "identity key pair file")
	peer := fs.String("peer", "", "expected service session key (hex)")
	rawParams := fs.String("params", "[]", "request params as a JSON array")
	timeout := fs.Duration("timeout", 10*time.Second, "overall deadline")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one method name")
	}

	var params []any
	if err := json.Unmarshal([]byte(*rawParams), &params); err != nil {
		return fmt.Errorf("-params: %w", err)
	}
	kp, err := config.LoadKeyPair(*keyFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	conn, err := wsconn.Dial(ctx, *url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	opts := []session.Option{session.WithLogger(c.logger)}
	if *peer != "" {
		opts = append(opts, session.WithPeerKey(*peer))
	}
	s, err := session.Connect(ctx, conn, kp, opts...)
	if err != nil {
		return err
	}

	resp, err := s.Call(ctx, fs.Arg(0), params...)
	if err != nil {
		return err
	}
	return writeJSON(c.stdout, resp)
}
