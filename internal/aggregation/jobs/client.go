package jobs

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
	"go.uber.org/zap"

	"github.com/structhub/asset-ingest/internal/store"
)

const (
	DefaultQueue  = "aggregation"
	MaxJobRetries = 3

	// retryBaseDelay is the first backoff step; each further attempt doubles it.
	retryBaseDelay = 10 * time.Second

	// completed tasks are kept briefly for observability, failed ones longer
	// for diagnosis
	completedRetention = 1 * time.Hour
	discardedRetention = 24 * time.Hour
)

type Client struct {
	*river.Client[pgx.Tx]
	debounceDelay time.Duration
}

func NewClient(pool *pgxpool.Pool, s store.Store, debounceDelay time.Duration, maxWorkers int) (*Client, error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, NewProjectStatsWorker(s))
	river.AddWorker(workers, NewSubProjectStatsWorker(s))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			DefaultQueue: {MaxWorkers: maxWorkers},
		},
		Workers:                     workers,
		RetryPolicy:                 &exponentialRetryPolicy{},
		CompletedJobRetentionPeriod: completedRetention,
		DiscardedJobRetentionPeriod: discardedRetention,
	})
	if err != nil {
		return nil, err
	}

	return &Client{Client: riverClient, debounceDelay: debounceDelay}, nil
}

// ScheduleProjectStats enqueues a project recomputation. Fire and forget: the
// insert happens off the caller's completion path.
func (c *Client) ScheduleProjectStats(ctx context.Context, projectID uuid.UUID) {
	go func() {
		_, err := c.Insert(context.WithoutCancel(ctx), ProjectStatsArgs{ProjectID: projectID}, nil)
		if err != nil {
			zap.S().Named("aggregation").Errorf("failed to schedule project stats for %s: %s", projectID, err)
		}
	}()
}

// ScheduleSubProjectStats enqueues a debounced sub-project recomputation. The
// job is scheduled debounceDelay in the future; unique-job de-duplication
// collapses further schedule calls landing inside that window.
func (c *Client) ScheduleSubProjectStats(ctx context.Context, subProjectID uuid.UUID) {
	go func() {
		_, err := c.Insert(context.WithoutCancel(ctx), SubProjectStatsArgs{SubProjectID: subProjectID}, &river.InsertOpts{
			ScheduledAt: time.Now().Add(c.debounceDelay),
		})
		if err != nil {
			zap.S().Named("aggregation").Errorf("failed to schedule sub-project stats for %s: %s", subProjectID, err)
		}
	}()
}

// exponentialRetryPolicy backs off retryBaseDelay * 2^(attempt-1).
type exponentialRetryPolicy struct{}

func (p *exponentialRetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	delay := time.Duration(float64(retryBaseDelay) * math.Pow(2, float64(job.Attempt-1)))
	return time.Now().Add(delay)
}
