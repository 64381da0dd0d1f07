package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/xraph/go-utils/metrics"

	"github.com/xraph/chatrelay"
	"github.com/xraph/chatrelay/observability"
	"github.com/xraph/chatrelay/simulator"
	"github.com/xraph/chatrelay/store"
	"github.com/xraph/chatrelay/store/memory"
	redisstore "github.com/xraph/chatrelay/store/redis"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay: /socket, /api/v1/message and friends",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Address = addr
			}
			return serve(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (overrides server.address)")
	return cmd
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck // best effort on exit

	opts := append(cfg.ToRelayOptions(),
		chatrelay.WithStore(st),
		chatrelay.WithLogger(logger),
		chatrelay.WithTracer(observability.NewTracer()),
		chatrelay.WithMetrics(observability.NewMetrics(metrics.NewMetricsCollector("chatrelay"))),
	)

	if cfg.Simulator.Enabled {
		base := localBaseURL(cfg.Server.Address)
		if cfg.Delivery.URL == "" {
			opts = append(opts, chatrelay.WithDeliveryURL(base+"/api/v1/message/proxy"))
		}
		callback := cfg.Simulator.CallbackURL
		if callback == "" {
			callback = base + "/api/v1/message"
		}
		opts = append(opts, chatrelay.WithSimulator(simulator.Config{
			CallbackURL: callback,
			Delay:       cfg.Simulator.Delay,
			Status:      simulator.Fixed(cfg.Simulator.Code),
		}))
	}

	relay, err := chatrelay.New(opts...)
	if err != nil {
		return err
	}
	relay.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           relay.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			_ = relay.Stop(context.Background()) //nolint:errcheck // already failing
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := relay.Stop(shutdownCtx); err != nil {
		logger.Error("relay shutdown incomplete", "error", err)
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch strings.ToLower(cfg.Store.Driver) {
	case "", "memory":
		return memory.New(), nil
	case "redis":
		st, err := redisstore.Open(ctx, cfg.Store.Redis.URL())
		if err != nil {
			return nil, fmt.Errorf("redis store %s: %w", cfg.Store.Redis.Addr, err)
		}
		if err := st.Ping(ctx); err != nil {
			st.Close() //nolint:errcheck // best effort
			return nil, fmt.Errorf("redis store %s: %w", cfg.Store.Redis.Addr, err)
		}
		logger.Info("using redis store", "addr", cfg.Store.Redis.Addr, "db", cfg.Store.Redis.DB)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q: want memory or redis", cfg.Store.Driver)
	}
}

// localBaseURL turns a listen address into a URL reachable from this host.
func localBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
