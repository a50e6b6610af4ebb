// Package cmd implements the sherlock command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreamland/sherlock/internal/app"
	"github.com/dreamland/sherlock/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "sherlock",
	Short: "Sherlock - base de conocimiento del restaurante",
	Long: `Sherlock mantiene la base de conocimiento vectorial que alimenta al
asistente de atención al cliente: alta y edición de entradas, importación
masiva, sincronización de catálogos externos y búsqueda semántica.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogger builds the structured logger. DEBUG in the environment
// switches to debug level.
func initLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if os.Getenv("DEBUG") != "" {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// setupApp loads configuration and initializes the application container.
// Callers must Close the returned App.
func setupApp(ctx context.Context) (*app.App, error) {
	logger := initLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, nil
}
