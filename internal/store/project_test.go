package store_test

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/structhub/asset-ingest/internal/config"
	st "github.com/structhub/asset-ingest/internal/store"
	"github.com/structhub/asset-ingest/internal/store/model"
)

var _ = Describe("project store", Ordered, func() {
	var (
		s      st.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := st.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = st.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration()).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from sub_projects;")
		gormdb.Exec("DELETE from projects;")
	})

	Context("counters", func() {
		It("moves the element counter by relative deltas", func() {
			projectID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertProjectStm, projectID.String(), "tower-a", "org"))
			Expect(tx.Error).To(BeNil())

			Expect(s.Project().IncrementElementCount(context.TODO(), projectID, 3)).To(BeNil())
			Expect(s.Project().IncrementElementCount(context.TODO(), projectID, 2)).To(BeNil())
			Expect(s.Project().IncrementElementCount(context.TODO(), projectID, -1)).To(BeNil())

			project, err := s.Project().Get(context.TODO(), projectID)
			Expect(err).To(BeNil())
			Expect(project.ElementCount).To(Equal(4))
		})

		It("a zero delta touches nothing", func() {
			Expect(s.Project().IncrementElementCount(context.TODO(), uuid.New(), 0)).To(BeNil())
		})

		It("incrementing an unknown project fails", func() {
			err := s.Project().IncrementElementCount(context.TODO(), uuid.New(), 1)
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("stats", func() {
		It("persists recomputed statistics", func() {
			projectID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertProjectStm, projectID.String(), "tower-a", "org"))
			Expect(tx.Error).To(BeNil())

			stats := model.ProjectStats{
				TotalElements: 10,
				TotalJobs:     50,
				JobsByStatus:  map[string]int{model.JobStatusOpen: 50},
				ComputedAt:    time.Now(),
			}
			Expect(s.Project().UpdateStats(context.TODO(), projectID, stats)).To(BeNil())

			project, err := s.Project().Get(context.TODO(), projectID)
			Expect(err).To(BeNil())
			Expect(project.Stats).ToNot(BeNil())
			Expect(project.Stats.Data.TotalElements).To(Equal(10))
			Expect(project.Stats.Data.JobsByStatus).To(HaveKeyWithValue(model.JobStatusOpen, 50))
		})
	})

	Context("sub-projects", func() {
		It("maintains the sub-project counter independently", func() {
			projectID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertProjectStm, projectID.String(), "tower-a", "org"))
			Expect(tx.Error).To(BeNil())

			subProject, err := s.Project().CreateSubProject(context.TODO(), model.SubProject{
				ID:        uuid.New(),
				Name:      "floor-3",
				ProjectID: projectID,
			})
			Expect(err).To(BeNil())

			Expect(s.Project().IncrementSubProjectElementCount(context.TODO(), subProject.ID, 2)).To(BeNil())

			got, err := s.Project().GetSubProject(context.TODO(), subProject.ID)
			Expect(err).To(BeNil())
			Expect(got.ElementCount).To(Equal(2))

			project, err := s.Project().Get(context.TODO(), projectID)
			Expect(err).To(BeNil())
			Expect(project.ElementCount).To(Equal(0))
		})
	})
})
