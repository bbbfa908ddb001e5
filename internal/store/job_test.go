package store_test

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/structhub/asset-ingest/internal/config"
	st "github.com/structhub/asset-ingest/internal/store"
	"github.com/structhub/asset-ingest/internal/store/model"
)

var _ = Describe("job store", Ordered, func() {
	var (
		s      st.Store
		gormdb *gorm.DB
	)

	newElement := func(workflow string) uuid.UUID {
		id := uuid.New()
		tx := gormdb.Exec(fmt.Sprintf(insertElementStm, id.String(), "beam-1", uuid.NewString(), uuid.NewString(), "org", workflow))
		Expect(tx.Error).To(BeNil())
		return id
	}

	newJob := func(elementID uuid.UUID, title string, orderIndex int) *model.Job {
		job, err := s.Job().Create(context.TODO(), model.Job{
			ID:         uuid.New(),
			Title:      title,
			ElementID:  elementID,
			ProjectID:  uuid.New(),
			OrgID:      "org",
			OrderIndex: orderIndex,
			Status:     model.JobStatusOpen,
		})
		Expect(err).To(BeNil())
		return job
	}

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
		gormdb.Exec("DELETE from jobs;")
		gormdb.Exec("DELETE from elements;")
	})

	Context("list", func() {
		It("returns the element's jobs ordered by order key", func() {
			elementID := newElement("steel_erection")
			newJob(elementID, "Erection", 300)
			newJob(elementID, "Fabrication review", 100)
			newJob(elementID, "Delivery inspection", 200)
			newJob(newElement("steel_erection"), "Erection", 100)

			jobs, err := s.Job().ListByElement(context.TODO(), elementID)
			Expect(err).To(BeNil())
			Expect(jobs).To(HaveLen(3))
			Expect(jobs[0].Title).To(Equal("Fabrication review"))
			Expect(jobs[1].Title).To(Equal("Delivery inspection"))
			Expect(jobs[2].Title).To(Equal("Erection"))
		})
	})

	Context("order keys", func() {
		It("rewrites the keys of a whole sequence", func() {
			elementID := newElement("steel_erection")
			newJob(elementID, "Fabrication review", 100)
			newJob(elementID, "Extra check", 150)
			newJob(elementID, "Delivery inspection", 200)

			jobs, err := s.Job().ListByElement(context.TODO(), elementID)
			Expect(err).To(BeNil())
			for i := range jobs {
				jobs[i].OrderIndex = (i + 1) * 100
			}
			Expect(s.Job().UpdateOrderIndexes(context.TODO(), jobs)).To(BeNil())

			jobs, err = s.Job().ListByElement(context.TODO(), elementID)
			Expect(err).To(BeNil())
			Expect(jobs[0].OrderIndex).To(Equal(100))
			Expect(jobs[1].OrderIndex).To(Equal(200))
			Expect(jobs[2].OrderIndex).To(Equal(300))
			Expect(jobs[1].Title).To(Equal("Extra check"))
		})
	})

	Context("delete", func() {
		It("reports the number of rows actually deleted", func() {
			elementID := newElement("steel_erection")
			job := newJob(elementID, "Erection", 100)

			deleted, err := s.Job().DeleteByIDs(context.TODO(), []uuid.UUID{job.ID, uuid.New()})
			Expect(err).To(BeNil())
			Expect(deleted).To(Equal(int64(1)))
		})
	})
})
