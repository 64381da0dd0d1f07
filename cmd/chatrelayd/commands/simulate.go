package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/chatrelay/envelope"
	"github.com/xraph/chatrelay/signature"
	"github.com/xraph/chatrelay/simulator"
)

func simulateCmd() *cobra.Command {
	var (
		addr     string
		callback string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a standalone delivery-service simulator",
		Long: `Accepts submissions on POST /api/v1/message/proxy and, after
simulator.delay, reports simulator.code back to the relay's confirmation
endpoint. Point delivery.url of a relay at this process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if callback == "" {
				callback = cfg.Simulator.CallbackURL
			}
			if callback == "" {
				return errors.New("callback URL required (--callback or simulator.callbackURL)")
			}
			return simulate(cmd.Context(), addr, callback)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", ":8081", "listen address")
	cmd.Flags().StringVar(&callback, "callback", "", "relay confirmation URL, e.g. http://127.0.0.1:8080/api/v1/message")
	return cmd
}

func simulate(parent context.Context, addr, callback string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	codec, err := envelope.NewCodec()
	if err != nil {
		return err
	}

	sim, err := simulator.New(simulator.Config{
		CallbackURL: callback,
		Delay:       cfg.Simulator.Delay,
		Status:      simulator.Fixed(cfg.Simulator.Code),
		Signer:      signature.NewSigner(cfg.Delivery.Secret),
	}, codec, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/message/proxy", sim)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("simulator starting", "addr", addr, "callback", callback, "code", cfg.Simulator.Code)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	// Reports still waiting on their delay are dropped.
	sim.Close()
	return sim.Wait(shutdownCtx)
}
