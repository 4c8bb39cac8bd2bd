package app

import (
	"context"
	"fmt"
	"time"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	app *App
}

func NewHealthService(app *App) *HealthService {
	return &HealthService{app: app}
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}

	status.Components["registry"] = fmt.Sprintf("ok (%d sources)", s.app.Repository.Len())
	if cycles := s.app.Graph.DetectCycles(); len(cycles) > 0 {
		status.Status = "degraded"
		status.Components["graph"] = fmt.Sprintf("%d import cycles", len(cycles))
	} else {
		status.Components["graph"] = fmt.Sprintf("ok (%d modules)", s.app.Graph.ModuleCount())
	}
	status.Components["cache"] = fmt.Sprintf("ok (%d text, %d ast)", s.app.textCache.Len(), s.app.astCache.Len())

	if s.app.store != nil {
		if _, err := s.app.store.List(ctx); err != nil {
			status.Status = "degraded"
			status.Components["store"] = "error: " + err.Error()
		} else {
			status.Components["store"] = "ok"
		}
	} else if s.app.Config.Cache.StorePath != "" {
		status.Status = "degraded"
		status.Components["store"] = "missing but enabled in config"
	}

	if s.app.persister != nil {
		status.Components["persist_queue"] = fmt.Sprintf("ok (%d pending)", s.app.persister.queue.Len())
	}

	if s.app.Config.Remote.Enabled {
		if s.app.remote == nil {
			status.Status = "degraded"
			status.Components["remote"] = "missing but enabled in config"
		} else {
			status.Components["remote"] = "ok"
		}
	}

	return status
}
