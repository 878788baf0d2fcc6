package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Rox-Lvmaohua/qrsignature/internal/config"
	"github.com/Rox-Lvmaohua/qrsignature/internal/service"
)

const janitorInterval = time.Hour

type App struct {
	Config *config.Config
	Logger *slog.Logger
	Server *http.Server

	signSvc service.SignServiceInterface
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, signSvc service.SignServiceInterface) *App {
	return &App{Config: cfg, Logger: logger, Server: server, signSvc: signSvc}
}

// StartJanitor purges terminal sessions past their retention window in the
// background until ctx is cancelled.
func (a *App) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.signSvc.PurgeOldSessions(ctx); err != nil {
					a.Logger.Warn("session retention sweep failed", "error", err)
				}
			}
		}
	}()
}
