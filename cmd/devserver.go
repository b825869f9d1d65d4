package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"techtribe-client/internal/devserver"
	"techtribe-client/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// demoPassword is shared by every seeded account
const demoPassword = "password"

var demoUsers = []models.User{
	{FirstName: "Ada", LastName: "Lovelace", Age: 28, Gender: "female", About: "Writing programs for engines that do not exist yet", Skills: []string{"Math", "Go"}},
	{FirstName: "Linus", LastName: "Torvalds", Age: 35, Gender: "male", About: "Talk is cheap. Show me the code.", Skills: []string{"C", "Git"}},
	{FirstName: "Grace", LastName: "Hopper", Age: 45, Gender: "female", About: "It's easier to ask forgiveness than permission", Skills: []string{"COBOL", "Compilers"}},
	{FirstName: "Ken", LastName: "Thompson", Age: 52, Gender: "male", About: "When in doubt, use brute force", Skills: []string{"C", "Go", "Unix"}},
	{FirstName: "Margaret", LastName: "Hamilton", Age: 33, Gender: "female", About: "Shipping software to the moon", Skills: []string{"Assembly", "Systems"}},
	{FirstName: "Rob", LastName: "Pike", Age: 41, Gender: "male", About: "Clear is better than clever", Skills: []string{"Go", "Plan 9"}},
}

func newDevServerCommand() *cobra.Command {
	var seed bool

	c := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory TechTribe backend for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := devserver.New(cfg.DevServer.JWTSecret, devserver.Options{})
			if seed {
				if err := seedDemoUsers(backend); err != nil {
					return err
				}
			}

			// Create HTTP server
			srv := &http.Server{
				Addr:         fmt.Sprintf("%s:%d", cfg.DevServer.Host, cfg.DevServer.Port),
				Handler:      backend.Handler(),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				log.Info().
					Str("host", cfg.DevServer.Host).
					Int("port", cfg.DevServer.Port).
					Bool("seeded", seed).
					Msg("Starting development backend")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
				close(errCh)
			}()

			// Wait for interrupt signal for graceful shutdown
			select {
			case err, ok := <-errCh:
				if ok {
					return fmt.Errorf("failed to start server: %w", err)
				}
				return nil
			case <-cmd.Context().Done():
			}

			log.Info().Msg("Shutting down server...")

			// Graceful shutdown with timeout
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("Server forced to shutdown")
			}

			log.Info().Msg("Server exited")
			return nil
		},
	}

	c.Flags().BoolVar(&seed, "seed", true, "create demo accounts")
	return c
}

// seedDemoUsers creates the demo accounts, each logging in as <firstname>@techtribe.dev
func seedDemoUsers(backend *devserver.Server) error {
	for _, u := range demoUsers {
		email := fmt.Sprintf("%s@techtribe.dev", strings.ToLower(u.FirstName))
		created, err := backend.Seed(u, email, demoPassword)
		if err != nil {
			return fmt.Errorf("failed to seed %s: %w", email, err)
		}
		log.Debug().Str("user_id", created.ID).Str("email", email).Msg("Seeded demo user")
	}
	return nil
}
