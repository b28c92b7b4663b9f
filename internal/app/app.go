// Package app provides application initialization and dependency wiring.
//
// Setup builds the full component graph in dependency order: database pool,
// Genkit provider, stores, extraction worker, conversation engine, and the
// HTTP server. Close tears everything down in reverse.
package app

import (
	"context"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leadgate/leadgate/internal/api"
	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/conversation"
	"github.com/leadgate/leadgate/internal/extract"
	"github.com/leadgate/leadgate/internal/history"
	"github.com/leadgate/leadgate/internal/lead"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Core services
	Genkit  *genkit.Genkit
	DBPool  *pgxpool.Pool
	History *history.Store
	Leads   *lead.Store
	Engine  *conversation.Engine
	Worker  *extract.Worker
	Server  *api.Server

	// Lifecycle management
	cancel context.CancelFunc
}

// Close gracefully shuts down all resources. Safe to call on a partially
// initialized App (Setup calls it when construction fails midway).
//
// Shutdown order matters: the worker drains queued extraction jobs first,
// while the pool and the lifecycle context are still alive.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.Worker != nil {
		a.Worker.Close()
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		if a.Logger != nil {
			a.Logger.Info("database pool closed")
		}
	}

	return nil
}
