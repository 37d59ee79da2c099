package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"taskdeck/internal/retention"
	"taskdeck/pkg/config"
	"taskdeck/pkg/llm"
	"taskdeck/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	model llm.Client
	srv   *http.Server
}

// New initializes resources that do not require a running context (DB,
// upstream model client). It does not start the HTTP server; call Run to
// start it and block until shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	cc := eff.Config.Chat
	model := llm.NewGemini(llm.Config{
		APIKey:          cc.APIKey,
		Model:           cc.Model,
		BaseURL:         cc.BaseURL,
		Persona:         cc.Persona,
		MaxOutputTokens: cc.MaxOutputTokens,
	})

	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate, model: model}
	return a, nil
}

// Run starts the HTTP server and the retention scheduler, and blocks
// until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	if a.eff.Config.Retention.Enabled {
		r, err := retention.New(a.eff.Config.Retention)
		if err != nil {
			return fmt.Errorf("invalid retention config: %w", err)
		}
		go r.Run(ctx)
	}

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdownHTTP()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases resources opened by New.
func (a *App) Close() error {
	return store.Close()
}
