package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-invoice/internal/obs"
	"github.com/noah-isme/backend-invoice/internal/report"
)

// DashboardRefresher recomputes cached dashboards.
type DashboardRefresher interface {
	RefreshDashboard(ctx context.Context, userID string) (report.Dashboard, error)
	RefreshAll(ctx context.Context) (int, error)
}

// Handler processes report tasks.
type Handler struct {
	Reports DashboardRefresher
	Logger  zerolog.Logger
}

// HandleDashboardRefresh processes TypeDashboardRefresh. Malformed payloads
// are not retried.
func (h Handler) HandleDashboardRefresh(ctx context.Context, task *asynq.Task) error {
	var payload DashboardRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode dashboard refresh payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.UserID == "" {
		return fmt.Errorf("dashboard refresh payload has no user id: %w", asynq.SkipRetry)
	}
	if _, err := h.Reports.RefreshDashboard(ctx, payload.UserID); err != nil {
		return fmt.Errorf("refresh dashboard %s: %w", payload.UserID, err)
	}
	return nil
}

// HandleDashboardRefreshAll processes TypeDashboardRefreshAll.
func (h Handler) HandleDashboardRefreshAll(ctx context.Context, _ *asynq.Task) error {
	n, err := h.Reports.RefreshAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh all dashboards after %d users: %w", n, err)
	}
	h.Logger.Info().Int("users", n).Msg("dashboards refreshed")
	return nil
}

// NewServeMux routes report tasks to h with logging and metrics.
func NewServeMux(h Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(observe(h.Logger))
	mux.HandleFunc(TypeDashboardRefresh, h.HandleDashboardRefresh)
	mux.HandleFunc(TypeDashboardRefreshAll, h.HandleDashboardRefreshAll)
	return mux
}

func observe(logger zerolog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			start := time.Now()
			err := next.ProcessTask(ctx, task)
			result := "ok"
			event := logger.Debug()
			if err != nil {
				result = "error"
				event = logger.Error().Err(err)
			}
			obs.RecordJob(task.Type(), result)
			event.Str("task", task.Type()).Dur("duration", time.Since(start)).Msg("task processed")
			return err
		})
	}
}
