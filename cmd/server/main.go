// Command server is the deploy ingestion core's entrypoint: a small
// cobra command tree (the teacher's go.mod carries cobra unwired; here
// it drives `serve` and `validate-pom`) over the composition root in
// internal/server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clojars/deploy-ingest/internal/config"
	"github.com/clojars/deploy-ingest/internal/pom"
	"github.com/clojars/deploy-ingest/internal/server"
)

func main() {
	root := &cobra.Command{
		Use:   "deploy-ingest",
		Short: "Maven deploy ingestion core",
	}
	root.AddCommand(serveCmd(), validatePomCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the deploy ingestion HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			srv, err := server.New(cfg)
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Run() }()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				return srv.Shutdown(context.Background())
			}
		},
	}
}

// validatePomCmd is an operator convenience command: parse a POM file
// off disk and report whether it satisfies the fields deploy ingestion
// requires (spec §3 "POM data"), without standing up the full server.
func validatePomCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-pom [file]",
		Short: "Parse a POM file and print its effective coordinate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			project, err := pom.Parse(data)
			if err != nil {
				return fmt.Errorf("invalid POM: %w", err)
			}
			fmt.Printf("%s:%s:%s (packaging=%s)\n",
				project.Group(), project.ArtifactID, project.EffectiveVersion(), project.EffectivePackaging())
			return nil
		},
	}
}
