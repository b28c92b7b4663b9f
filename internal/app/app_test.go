package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/leadgate/leadgate/internal/config"
	"github.com/leadgate/leadgate/internal/extract"
	"github.com/leadgate/leadgate/internal/log"
)

type nopRunner struct{}

func (nopRunner) Run(context.Context, extract.Job) {}

func TestApp_Close(t *testing.T) {
	tests := []struct {
		name     string
		setupApp func() *App
	}{
		{
			name:     "empty app",
			setupApp: func() *App { return &App{} },
		},
		{
			name: "app with cancel function",
			setupApp: func() *App {
				_, cancel := context.WithCancel(context.Background())
				return &App{cancel: cancel, Logger: log.NewNop()}
			},
		},
		{
			name: "app with worker",
			setupApp: func() *App {
				w := extract.NewWorker(extract.WorkerConfig{
					Runner: nopRunner{},
					Logger: log.NewNop(),
				})
				return &App{Worker: w, Logger: log.NewNop()}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.setupApp()
			assert.NoError(t, a.Close())
			// Close must be safe to call again after a partial teardown.
			assert.NoError(t, a.Close())
		})
	}
}

func TestSetup_FailsFastOnBadDatabase(t *testing.T) {
	cfg := &config.Config{
		Provider:            config.ProviderOllama,
		ModelName:           "llama3.3",
		OllamaHost:          "http://localhost:11434",
		MaxInputLength:      10000,
		ModelTimeoutSeconds: 60,
		ExtractWorkers:      1,
		ExtractQueueSize:    64,
		PostgresHost:        "localhost",
		PostgresPort:        1, // nothing listens here
		PostgresUser:        "nobody",
		PostgresPassword:    "nope",
		PostgresDBName:      "missing",
		PostgresSSLMode:     "disable",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Setup(ctx, cfg, log.NewNop())
	assert.Error(t, err)
}
