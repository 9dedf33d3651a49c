// Package jobs runs background work on asynq: recomputing cached dashboards
// after invoices or payments change and on a schedule.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-invoice/internal/obs"
)

const (
	// TypeDashboardRefresh recomputes one user's dashboard.
	TypeDashboardRefresh = "report:dashboard_refresh"
	// TypeDashboardRefreshAll recomputes the dashboard of every user with invoices.
	TypeDashboardRefreshAll = "report:dashboard_refresh_all"

	// DefaultQueue is the asynq queue the API enqueues into.
	DefaultQueue = "reports"
)

// DashboardRefreshPayload is the body of a TypeDashboardRefresh task.
type DashboardRefreshPayload struct {
	UserID string `json:"user_id"`
}

// NewDashboardRefreshTask builds the refresh task for userID.
func NewDashboardRefreshTask(userID string) (*asynq.Task, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("jobs: user id is required")
	}
	payload, err := json.Marshal(DashboardRefreshPayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDashboardRefresh, payload), nil
}

// NewDashboardRefreshAllTask builds the periodic task that refreshes every
// dashboard.
func NewDashboardRefreshAllTask() *asynq.Task {
	return asynq.NewTask(TypeDashboardRefreshAll, nil)
}

// TaskClient is the subset of *asynq.Client used to enqueue.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer schedules dashboard refreshes.
type Enqueuer struct {
	Client TaskClient
	Queue  string
	// Dedup collapses refreshes for the same user enqueued within the window.
	Dedup      time.Duration
	MaxRetry   int
	JobTimeout time.Duration
}

// EnqueueDashboardRefresh enqueues a refresh for userID. A refresh already
// pending for the user is not an error.
func (e Enqueuer) EnqueueDashboardRefresh(ctx context.Context, userID string) error {
	if e.Client == nil {
		return errors.New("jobs: task client not configured")
	}
	task, err := NewDashboardRefreshTask(userID)
	if err != nil {
		return err
	}
	_, err = e.Client.EnqueueContext(ctx, task, e.options()...)
	switch {
	case err == nil:
		obs.RecordJob(TypeDashboardRefresh, "enqueued")
		return nil
	case errors.Is(err, asynq.ErrDuplicateTask), errors.Is(err, asynq.ErrTaskIDConflict):
		obs.RecordJob(TypeDashboardRefresh, "deduplicated")
		return nil
	default:
		obs.RecordJob(TypeDashboardRefresh, "enqueue_failed")
		return fmt.Errorf("enqueue dashboard refresh: %w", err)
	}
}

func (e Enqueuer) options() []asynq.Option {
	queue := e.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	opts := []asynq.Option{asynq.Queue(queue)}
	if e.Dedup > 0 {
		opts = append(opts, asynq.Unique(e.Dedup))
	}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.JobTimeout > 0 {
		opts = append(opts, asynq.Timeout(e.JobTimeout))
	}
	return opts
}
