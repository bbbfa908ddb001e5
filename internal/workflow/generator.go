package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/structhub/asset-ingest/internal/store"
	"github.com/structhub/asset-ingest/internal/store/model"
)

type ErrUnknownWorkflow struct {
	error
}

func NewErrUnknownWorkflow(selector string) *ErrUnknownWorkflow {
	return &ErrUnknownWorkflow{fmt.Errorf("unknown workflow %q", selector)}
}

type ErrOrderKeyExhausted struct {
	error
}

func NewErrOrderKeyExhausted(lower, upper int) *ErrOrderKeyExhausted {
	return &ErrOrderKeyExhausted{fmt.Errorf("no free order key between %d and %d", lower, upper)}
}

// Generator produces the ordered job template of an element's workflow and
// maintains the sparse order keys afterwards.
type Generator struct {
	store store.Store
}

func NewGenerator(s store.Store) *Generator {
	return &Generator{store: s}
}

// Generate persists one job per template step of the element's workflow,
// with order keys at multiples of OrderIndexSpacing. An element without a
// workflow selector yields no jobs and no error. The caller is expected to
// run this inside a transaction context together with the element write.
func (g *Generator) Generate(ctx context.Context, element *model.Element) (model.JobList, error) {
	if element.Workflow == "" {
		return model.JobList{}, nil
	}

	steps, ok := Steps(element.Workflow)
	if !ok {
		return nil, NewErrUnknownWorkflow(element.Workflow)
	}

	jobs := make(model.JobList, 0, len(steps))
	for i, title := range steps {
		job := model.Job{
			ID:           uuid.New(),
			Title:        title,
			ElementID:    element.ID,
			ProjectID:    element.ProjectID,
			SubProjectID: element.SubProjectID,
			OrgID:        element.OrgID,
			OrderIndex:   (i + 1) * OrderIndexSpacing,
			Status:       model.JobStatusOpen,
		}

		created, err := g.store.Job().Create(ctx, job)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *created)
	}

	return jobs, nil
}

// InsertAfter creates a new job positioned between the job at afterIndex and
// its successor, using midpoint arithmetic on the sparse keys. When the
// interval has no free integer left, the element's whole sequence is
// renumbered back to multiples of OrderIndexSpacing and the insertion is
// retried on the fresh keys.
func (g *Generator) InsertAfter(ctx context.Context, elementID uuid.UUID, afterIndex int, title string) (*model.Job, error) {
	jobs, err := g.store.Job().ListByElement(ctx, elementID)
	if err != nil {
		return nil, err
	}

	newIndex, ok := midpoint(jobs, afterIndex)
	if !ok {
		zap.S().Named("workflow").Infof("order keys exhausted for element %s, renumbering %d jobs", elementID, len(jobs))
		if err := g.renumber(ctx, jobs); err != nil {
			return nil, err
		}
		// afterIndex moved during renumbering: locate the same job by rank.
		rank := rankOf(jobs, afterIndex)
		jobs, err = g.store.Job().ListByElement(ctx, elementID)
		if err != nil {
			return nil, err
		}
		newIndex, ok = midpoint(jobs, jobs[rank].OrderIndex)
		if !ok {
			return nil, NewErrOrderKeyExhausted(jobs[rank].OrderIndex, jobs[rank].OrderIndex+OrderIndexSpacing)
		}
	}

	element, err := g.store.Element().Get(ctx, elementID)
	if err != nil {
		return nil, err
	}

	job := model.Job{
		ID:           uuid.New(),
		Title:        title,
		ElementID:    element.ID,
		ProjectID:    element.ProjectID,
		SubProjectID: element.SubProjectID,
		OrgID:        element.OrgID,
		OrderIndex:   newIndex,
		Status:       model.JobStatusOpen,
	}

	return g.store.Job().Create(ctx, job)
}

// midpoint computes the insertion key after the job holding afterIndex.
// Returns false when the interval between the two neighbours is exhausted.
func midpoint(jobs model.JobList, afterIndex int) (int, bool) {
	upper := afterIndex + 2*OrderIndexSpacing
	for _, j := range jobs {
		if j.OrderIndex > afterIndex && j.OrderIndex < upper {
			upper = j.OrderIndex
			break
		}
	}

	if upper-afterIndex < 2 {
		return 0, false
	}
	return afterIndex + (upper-afterIndex)/2, true
}

func rankOf(jobs model.JobList, orderIndex int) int {
	for i, j := range jobs {
		if j.OrderIndex == orderIndex {
			return i
		}
	}
	return 0
}

// renumber rewrites the element's keys back to multiples of OrderIndexSpacing
// preserving the current order. Runs under a transaction so readers never see
// a half-renumbered sequence.
func (g *Generator) renumber(ctx context.Context, jobs model.JobList) error {
	ctx, err := g.store.NewTransactionContext(ctx)
	if err != nil {
		return err
	}

	for i := range jobs {
		jobs[i].OrderIndex = (i + 1) * OrderIndexSpacing
	}

	if err := g.store.Job().UpdateOrderIndexes(ctx, jobs); err != nil {
		_, _ = store.Rollback(ctx)
		return err
	}

	if _, err := store.Commit(ctx); err != nil {
		return err
	}
	return nil
}
