package cmd

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/solid/oidc-auth-manager/internal/api"
	"github.com/solid/oidc-auth-manager/internal/metrics"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the provider host",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		metrics.Init()

		stack, err := f.BuildStack(cmd.Context())
		if err != nil {
			return err
		}
		defer stack.Close()

		if addr == "" {
			addr = stack.Cfg.ListenAddr
		}

		adminKey := []byte(stack.Cfg.Admin.Secret)
		if len(adminKey) == 0 {
			// without a configured secret nobody can mint a valid
			// admin token, so the admin api stays unreachable
			adminKey = make([]byte, 32)
			if _, err := rand.Read(adminKey); err != nil {
				return fmt.Errorf("generating admin key: %w", err)
			}
			log.Warn().Msg("no admin.secret configured, admin api is locked")
		}

		srv := api.NewServer(
			stack.Cfg,
			stack.Authority,
			stack.Verifier,
			stack.Discovery,
			stack.Host,
			stack.Sessions,
			stack.Users,
			stack.Clients,
			nil, // no issuance engine mounted
			stack.Auditor,
		)

		server := &http.Server{
			Addr:              addr,
			Handler:           srv.Routes(adminKey),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Info().Msgf("Starting server on %s (issuer: %s)...", addr, stack.Cfg.Issuer)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("Server crashed")
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info().Msg("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info().Msg("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Address to listen on (defaults to listen_addr from the config)")
	f.bindConfigFlag(serveCmd.Flags())
}
