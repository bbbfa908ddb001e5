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

var _ = Describe("element store", Ordered, func() {
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
		gormdb.Exec("DELETE from jobs;")
		gormdb.Exec("DELETE from elements;")
	})

	Context("create", func() {
		It("rejects a duplicate external ref within the project", func() {
			projectID := uuid.New()

			tx := gormdb.Exec(fmt.Sprintf(insertElementStm, uuid.NewString(), "beam-1", "B-001", projectID.String(), "org", ""))
			Expect(tx.Error).To(BeNil())

			_, err := s.Element().Create(context.TODO(), model.Element{
				ID:          uuid.New(),
				Name:        "beam-1-again",
				ExternalRef: "B-001",
				ProjectID:   projectID,
				OrgID:       "org",
			})
			Expect(err).To(MatchError(st.ErrDuplicateKey))
		})

		It("allows the same external ref in another project", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertElementStm, uuid.NewString(), "beam-1", "B-001", uuid.NewString(), "org", ""))
			Expect(tx.Error).To(BeNil())

			_, err := s.Element().Create(context.TODO(), model.Element{
				ID:          uuid.New(),
				Name:        "beam-1",
				ExternalRef: "B-001",
				ProjectID:   uuid.New(),
				OrgID:       "org",
			})
			Expect(err).To(BeNil())
		})
	})

	Context("exists", func() {
		It("reports presence of an external ref per project", func() {
			projectID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertElementStm, uuid.NewString(), "beam-1", "B-001", projectID.String(), "org", ""))
			Expect(tx.Error).To(BeNil())

			exists, err := s.Element().ExistsByExternalRef(context.TODO(), projectID, "B-001")
			Expect(err).To(BeNil())
			Expect(exists).To(BeTrue())

			exists, err = s.Element().ExistsByExternalRef(context.TODO(), projectID, "B-002")
			Expect(err).To(BeNil())
			Expect(exists).To(BeFalse())

			exists, err = s.Element().ExistsByExternalRef(context.TODO(), uuid.New(), "B-001")
			Expect(err).To(BeNil())
			Expect(exists).To(BeFalse())
		})
	})

	Context("delete", func() {
		It("reports the number of rows actually deleted", func() {
			firstID := uuid.New()
			tx := gormdb.Exec(fmt.Sprintf(insertElementStm, firstID.String(), "beam-1", "B-001", uuid.NewString(), "org", ""))
			Expect(tx.Error).To(BeNil())

			deleted, err := s.Element().DeleteByIDs(context.TODO(), []uuid.UUID{firstID, uuid.New()})
			Expect(err).To(BeNil())
			Expect(deleted).To(Equal(int64(1)))
		})

		It("an empty id list deletes nothing", func() {
			deleted, err := s.Element().DeleteByIDs(context.TODO(), []uuid.UUID{})
			Expect(err).To(BeNil())
			Expect(deleted).To(Equal(int64(0)))
		})
	})

	Context("orphans", func() {
		It("lists elements with a workflow but no jobs", func() {
			orphanID := uuid.New()
			coveredID := uuid.New()
			noWorkflowID := uuid.New()

			tx := gormdb.Exec(fmt.Sprintf(insertElementStm, orphanID.String(), "beam-1", "B-001", uuid.NewString(), "org", "steel_erection"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertElementStm, coveredID.String(), "beam-2", "B-002", uuid.NewString(), "org", "steel_erection"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertElementStm, noWorkflowID.String(), "beam-3", "B-003", uuid.NewString(), "org", ""))
			Expect(tx.Error).To(BeNil())

			_, err := s.Job().Create(context.TODO(), model.Job{
				ID:         uuid.New(),
				Title:      "Erection",
				ElementID:  coveredID,
				ProjectID:  uuid.New(),
				OrgID:      "org",
				OrderIndex: 100,
				Status:     model.JobStatusOpen,
			})
			Expect(err).To(BeNil())

			orphans, err := s.Element().ListOrphaned(context.TODO(), time.Now().Add(-time.Hour))
			Expect(err).To(BeNil())
			Expect(orphans).To(HaveLen(1))
			Expect(orphans[0].ID).To(Equal(orphanID))
		})

		It("ignores elements created before the cutoff", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertElementStm, uuid.NewString(), "beam-1", "B-001", uuid.NewString(), "org", "steel_erection"))
			Expect(tx.Error).To(BeNil())

			orphans, err := s.Element().ListOrphaned(context.TODO(), time.Now().Add(time.Hour))
			Expect(err).To(BeNil())
			Expect(orphans).To(HaveLen(0))
		})
	})
})
