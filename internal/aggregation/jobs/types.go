package jobs

import (
	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// ProjectStatsArgs requests recomputation of one project's derived
// statistics. Stored in river_job.args as JSON.
type ProjectStatsArgs struct {
	ProjectID uuid.UUID `json:"projectId"`
}

func (ProjectStatsArgs) Kind() string {
	return "project_stats_recompute"
}

func (ProjectStatsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       DefaultQueue,
		MaxAttempts: MaxJobRetries,
		UniqueOpts:  uniqueOpts(),
	}
}

// SubProjectStatsArgs requests recomputation of one sub-project's derived
// statistics. Scheduling is debounced: a burst of batch completions for the
// same sub-project coalesces into a single run.
type SubProjectStatsArgs struct {
	SubProjectID uuid.UUID `json:"subProjectId"`
}

func (SubProjectStatsArgs) Kind() string {
	return "sub_project_stats_recompute"
}

func (SubProjectStatsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       DefaultQueue,
		MaxAttempts: MaxJobRetries,
		UniqueOpts:  uniqueOpts(),
	}
}

// uniqueOpts de-duplicates by args while a job for the same target is still
// waiting to run. A second schedule call within the debounce window is a
// no-op; once the job is running or finished a new one may be inserted.
func uniqueOpts() river.UniqueOpts {
	return river.UniqueOpts{
		ByArgs: true,
		ByState: []rivertype.JobState{
			rivertype.JobStateAvailable,
			rivertype.JobStateScheduled,
			rivertype.JobStateRetryable,
			rivertype.JobStatePending,
		},
	}
}
