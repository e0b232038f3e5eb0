//go:build integration

package proofs

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arnavshah/volunteer-portal-go/pkg/apperr"
	"github.com/arnavshah/volunteer-portal-go/pkg/certificates"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
	"github.com/arnavshah/volunteer-portal-go/pkg/registration"
	"github.com/arnavshah/volunteer-portal-go/pkg/storage"
	"github.com/arnavshah/volunteer-portal-go/pkg/testutil"
	"github.com/arnavshah/volunteer-portal-go/pkg/testutil/containers"
)

func TestPostgres_ConcurrentReviewSerializes(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	db := pg.DB
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	renderer := certificates.NewDocumentRenderer(store, "secret", "http://localhost:8000")
	engine := NewEngine(db, store, certificates.NewService(db, renderer, store, zap.NewNop()), zap.NewNop())

	coord := testutil.CreateCoordinator(t, db, "Cole")
	vol := testutil.CreateVolunteer(t, db, "Ana")
	event := testutil.CreateEvent(t, db, coord.ID, "Harbor Cleanup", 50)
	testutil.Register(t, db, vol.ID, event.ID)

	proof, err := engine.Submit(context.Background(), vol.ID, event.ID, Evidence{Data: []byte("jpeg"), Filename: "p.jpg"})
	require.NoError(t, err)

	const reviewers = 10
	results := make([]error, reviewers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			if i%2 == 0 {
				_, results[i] = engine.Approve(context.Background(), proof.ID, coord.ID)
			} else {
				_, results[i] = engine.Reject(context.Background(), proof.ID, coord.ID, "duplicate")
			}
		}(i)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.Conflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, winners)

	var stored database.Proof
	require.NoError(t, db.First(&stored, proof.ID).Error)
	var v database.Volunteer
	require.NoError(t, db.First(&v, vol.ID).Error)
	var reg database.Registration
	require.NoError(t, db.Where("volunteer_id = ? AND event_id = ?", vol.ID, event.ID).First(&reg).Error)

	switch stored.Status {
	case database.ProofApproved:
		assert.Equal(t, 50, v.TotalPoints)
		assert.Equal(t, database.RegistrationCompleted, reg.Status)
	case database.ProofRejected:
		assert.Zero(t, v.TotalPoints)
		assert.Equal(t, database.RegistrationRejected, reg.Status)
	default:
		t.Fatalf("proof left in state %s", stored.Status)
	}
}

func TestPostgres_SubmitAndUnregisterSerialize(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	db := pg.DB
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	renderer := certificates.NewDocumentRenderer(store, "secret", "http://localhost:8000")
	engine := NewEngine(db, store, certificates.NewService(db, renderer, store, zap.NewNop()), zap.NewNop())
	ledger := registration.New(db, zap.NewNop())

	coord := testutil.CreateCoordinator(t, db, "Cole")
	event := testutil.CreateEvent(t, db, coord.ID, "Harbor Cleanup", 50)

	const rounds = 20
	for i := 0; i < rounds; i++ {
		vol := testutil.CreateVolunteer(t, db, fmt.Sprintf("Volunteer %d", i))
		testutil.Register(t, db, vol.ID, event.ID)

		var submitErr, unregisterErr error
		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, submitErr = engine.Submit(context.Background(), vol.ID, event.ID, Evidence{Data: []byte("jpeg"), Filename: "p.jpg"})
		}()
		go func() {
			defer wg.Done()
			<-start
			unregisterErr = ledger.Unregister(context.Background(), vol.ID, event.ID)
		}()
		close(start)
		wg.Wait()

		var proofs, regs int64
		require.NoError(t, db.Model(&database.Proof{}).Where("volunteer_id = ?", vol.ID).Count(&proofs).Error)
		require.NoError(t, db.Model(&database.Registration{}).Where("volunteer_id = ?", vol.ID).Count(&regs).Error)

		switch {
		case submitErr == nil:
			// submit won: the unregister must have seen the pending proof
			require.Error(t, unregisterErr)
			assert.True(t, apperr.Is(unregisterErr, apperr.Conflict), "unexpected error: %v", unregisterErr)
			assert.Equal(t, int64(1), proofs)
			assert.Equal(t, int64(1), regs)
		default:
			assert.True(t, apperr.Is(submitErr, apperr.PreconditionFailed), "unexpected error: %v", submitErr)
			assert.NoError(t, unregisterErr)
			assert.Zero(t, proofs)
			assert.Zero(t, regs)
		}
	}
}

func TestPostgres_RegisterUnknownVolunteerIsNotFound(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	coord := testutil.CreateCoordinator(t, pg.DB, "Cole")
	event := testutil.CreateEvent(t, pg.DB, coord.ID, "Harbor Cleanup", 50)

	_, err := registration.New(pg.DB, zap.NewNop()).Register(context.Background(), 4242, event.ID)
	assert.True(t, apperr.Is(err, apperr.NotFound), "unexpected error: %v", err)
}

func TestPostgres_DuplicateRegistrationMapsToConflict(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	coord := testutil.CreateCoordinator(t, pg.DB, "Cole")
	vol := testutil.CreateVolunteer(t, pg.DB, "Ana")
	event := testutil.CreateEvent(t, pg.DB, coord.ID, "Harbor Cleanup", 50)
	testutil.Register(t, pg.DB, vol.ID, event.ID)

	err := pg.DB.Create(&database.Registration{
		VolunteerID: vol.ID,
		EventID:     event.ID,
		Status:      database.RegistrationApplied,
	}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}
