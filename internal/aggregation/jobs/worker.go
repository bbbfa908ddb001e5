package jobs

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/structhub/asset-ingest/internal/store"
	"github.com/structhub/asset-ingest/internal/store/model"
	"github.com/structhub/asset-ingest/pkg/metrics"
)

const JobTimeout = 2 * time.Minute

type ProjectStatsWorker struct {
	river.WorkerDefaults[ProjectStatsArgs]
	store store.Store
}

func NewProjectStatsWorker(s store.Store) *ProjectStatsWorker {
	return &ProjectStatsWorker{store: s}
}

func (w *ProjectStatsWorker) Timeout(job *river.Job[ProjectStatsArgs]) time.Duration {
	return JobTimeout
}

func (w *ProjectStatsWorker) Work(ctx context.Context, job *river.Job[ProjectStatsArgs]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stats, err := computeStats(ctx, w.store, store.NewElementQueryFilter().ByProjectID(job.Args.ProjectID))
	if err != nil {
		return err
	}

	if err := w.store.Project().UpdateStats(ctx, job.Args.ProjectID, stats); err != nil {
		return err
	}

	metrics.IncreaseAggregationRunsMetric("project")
	zap.S().Named("aggregation").Debugf("recomputed stats for project %s: %d elements, %d jobs",
		job.Args.ProjectID, stats.TotalElements, stats.TotalJobs)
	return nil
}

type SubProjectStatsWorker struct {
	river.WorkerDefaults[SubProjectStatsArgs]
	store store.Store
}

func NewSubProjectStatsWorker(s store.Store) *SubProjectStatsWorker {
	return &SubProjectStatsWorker{store: s}
}

func (w *SubProjectStatsWorker) Timeout(job *river.Job[SubProjectStatsArgs]) time.Duration {
	return JobTimeout
}

func (w *SubProjectStatsWorker) Work(ctx context.Context, job *river.Job[SubProjectStatsArgs]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stats, err := computeStats(ctx, w.store, store.NewElementQueryFilter().BySubProjectID(job.Args.SubProjectID))
	if err != nil {
		return err
	}

	if err := w.store.Project().UpdateSubProjectStats(ctx, job.Args.SubProjectID, stats); err != nil {
		return err
	}

	metrics.IncreaseAggregationRunsMetric("sub_project")
	return nil
}

// computeStats derives the statistics from the current element set. This is
// the reconciliation path: the denormalized counters on the project row are
// maintained incrementally and are not consulted here.
func computeStats(ctx context.Context, s store.Store, filter *store.ElementQueryFilter) (model.ProjectStats, error) {
	elements, err := s.Element().List(ctx, filter)
	if err != nil {
		return model.ProjectStats{}, err
	}

	stats := model.ProjectStats{
		TotalElements: len(elements),
		JobsByStatus:  map[string]int{},
		ComputedAt:    time.Now(),
	}

	for _, element := range elements {
		jobs, err := s.Job().ListByElement(ctx, element.ID)
		if err != nil {
			return model.ProjectStats{}, err
		}
		stats.TotalJobs += len(jobs)
		for _, j := range jobs {
			stats.JobsByStatus[j.Status]++
		}
	}

	return stats, nil
}
