// Package app wires the knowledge pipeline together: configuration,
// Genkit provider plugins, the PostgreSQL pool, the entry store, the
// vector index and the services built on top of them.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dreamland/sherlock/internal/config"
	"github.com/dreamland/sherlock/internal/embedding"
	"github.com/dreamland/sherlock/internal/hyde"
	"github.com/dreamland/sherlock/internal/knowledge"
	"github.com/dreamland/sherlock/internal/normalize"
	"github.com/dreamland/sherlock/internal/vectorindex"
)

// App is the application container. Build one with Setup and release its
// resources with Close.
type App struct {
	Config *config.Config

	Genkit   *genkit.Genkit
	Model    ai.Model
	Embedder ai.Embedder
	Pool     *pgxpool.Pool

	Store      *knowledge.Store
	Index      *vectorindex.Index
	Embeddings *embedding.Client
	Expander   *hyde.Expander
	Normalizer *normalize.Normalizer
	Service    *knowledge.Service

	logger      *slog.Logger
	otelCleanup func()
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger
}

// Close releases all resources acquired during Setup. Safe to call on a
// partially initialized App.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger().Debug("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}
