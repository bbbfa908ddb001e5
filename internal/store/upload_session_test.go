package store_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/structhub/asset-ingest/internal/config"
	st "github.com/structhub/asset-ingest/internal/store"
	"github.com/structhub/asset-ingest/internal/store/model"
)

var _ = Describe("upload session store", Ordered, func() {
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
		gormdb.Exec("DELETE from upload_sessions;")
	})

	Context("create", func() {
		It("successfully creates a pending session", func() {
			session := model.NewUploadSession(uuid.New(), nil, "org", "upload-1", 3)

			created, err := s.UploadSession().Create(context.TODO(), session)
			Expect(err).To(BeNil())
			Expect(created.Status).To(Equal(model.SessionStatusPending))
			Expect(created.Batches.Data).To(HaveLen(3))
			Expect(created.Version).To(Equal(0))
		})

		It("rejects a second session for the same org and upload id", func() {
			_, err := s.UploadSession().Create(context.TODO(), model.NewUploadSession(uuid.New(), nil, "org", "upload-1", 1))
			Expect(err).To(BeNil())

			_, err = s.UploadSession().Create(context.TODO(), model.NewUploadSession(uuid.New(), nil, "org", "upload-1", 1))
			Expect(err).To(MatchError(st.ErrDuplicateKey))
		})

		It("allows the same upload id in another org", func() {
			_, err := s.UploadSession().Create(context.TODO(), model.NewUploadSession(uuid.New(), nil, "org-a", "upload-1", 1))
			Expect(err).To(BeNil())

			_, err = s.UploadSession().Create(context.TODO(), model.NewUploadSession(uuid.New(), nil, "org-b", "upload-1", 1))
			Expect(err).To(BeNil())
		})
	})

	Context("get", func() {
		It("successfully gets a session by id", func() {
			created, err := s.UploadSession().Create(context.TODO(), model.NewUploadSession(uuid.New(), nil, "org", "upload-1", 2))
			Expect(err).To(BeNil())

			session, err := s.UploadSession().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(session.UploadID).To(Equal("upload-1"))
			Expect(session.Batches.Data).To(HaveLen(2))
		})

		It("returns not found for an unknown id", func() {
			_, err := s.UploadSession().Get(context.TODO(), uuid.New())
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})

		It("successfully gets a session by upload id", func() {
			created, err := s.UploadSession().Create(context.TODO(), model.NewUploadSession(uuid.New(), nil, "org", "upload-1", 1))
			Expect(err).To(BeNil())

			session, err := s.UploadSession().GetByUploadID(context.TODO(), "org", "upload-1")
			Expect(err).To(BeNil())
			Expect(session.ID).To(Equal(created.ID))

			_, err = s.UploadSession().GetByUploadID(context.TODO(), "other-org", "upload-1")
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})
	})

	Context("list", func() {
		It("filters by org and status", func() {
			_, err := s.UploadSession().Create(context.TODO(), model.NewUploadSession(uuid.New(), nil, "org-a", "upload-1", 1))
			Expect(err).To(BeNil())
			_, err = s.UploadSession().Create(context.TODO(), model.NewUploadSession(uuid.New(), nil, "org-b", "upload-2", 1))
			Expect(err).To(BeNil())

			sessions, err := s.UploadSession().List(context.TODO(), st.NewUploadSessionQueryFilter().ByOrgID("org-a"))
			Expect(err).To(BeNil())
			Expect(sessions).To(HaveLen(1))
			Expect(sessions[0].OrgID).To(Equal("org-a"))

			sessions, err = s.UploadSession().List(context.TODO(), st.NewUploadSessionQueryFilter().ByStatus(model.SessionStatusPending))
			Expect(err).To(BeNil())
			Expect(sessions).To(HaveLen(2))
		})

		It("filters by update staleness", func() {
			_, err := s.UploadSession().Create(context.TODO(), model.NewUploadSession(uuid.New(), nil, "org", "upload-1", 1))
			Expect(err).To(BeNil())

			sessions, err := s.UploadSession().List(context.TODO(), st.NewUploadSessionQueryFilter().
				UpdatedBefore(time.Now().Add(-time.Hour)))
			Expect(err).To(BeNil())
			Expect(sessions).To(HaveLen(0))

			sessions, err = s.UploadSession().List(context.TODO(), st.NewUploadSessionQueryFilter().
				UpdatedBefore(time.Now().Add(time.Hour)))
			Expect(err).To(BeNil())
			Expect(sessions).To(HaveLen(1))
		})
	})

	Context("update", func() {
		It("bumps the version on every save", func() {
			created, err := s.UploadSession().Create(context.TODO(), model.NewUploadSession(uuid.New(), nil, "org", "upload-1", 1))
			Expect(err).To(BeNil())

			created.Batch(1).MarkSuccess([]uuid.UUID{uuid.New()}, []uuid.UUID{}, 0)
			created.Recompute()

			updated, err := s.UploadSession().Update(context.TODO(), created)
			Expect(err).To(BeNil())
			Expect(updated.Version).To(Equal(1))

			session, err := s.UploadSession().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(session.Status).To(Equal(model.SessionStatusCompleted))
			Expect(session.Version).To(Equal(1))
		})

		It("rejects a save based on a stale read", func() {
			created, err := s.UploadSession().Create(context.TODO(), model.NewUploadSession(uuid.New(), nil, "org", "upload-1", 2))
			Expect(err).To(BeNil())

			first, err := s.UploadSession().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			second, err := s.UploadSession().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())

			first.Batch(1).MarkSuccess([]uuid.UUID{uuid.New()}, []uuid.UUID{}, 0)
			first.Recompute()
			_, err = s.UploadSession().Update(context.TODO(), first)
			Expect(err).To(BeNil())

			second.Batch(2).MarkFailed("worker stalled", "")
			second.Recompute()
			_, err = s.UploadSession().Update(context.TODO(), second)
			Expect(err).To(MatchError(st.ErrConcurrentUpdate))

			// the loser keeps its version so a reload-and-replay can win
			Expect(second.Version).To(Equal(0))
		})
	})

	Context("delete", func() {
		It("successfully deletes a session", func() {
			created, err := s.UploadSession().Create(context.TODO(), model.NewUploadSession(uuid.New(), nil, "org", "upload-1", 1))
			Expect(err).To(BeNil())

			Expect(s.UploadSession().Delete(context.TODO(), created.ID)).To(BeNil())

			_, err = s.UploadSession().Get(context.TODO(), created.ID)
			Expect(err).To(MatchError(st.ErrRecordNotFound))
		})

		It("deleting an unknown session is not an error", func() {
			Expect(s.UploadSession().Delete(context.TODO(), uuid.New())).To(BeNil())
		})
	})
})
