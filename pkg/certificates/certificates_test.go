package certificates_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arnavshah/volunteer-portal-go/pkg/apperr"
	"github.com/arnavshah/volunteer-portal-go/pkg/certificates"
	"github.com/arnavshah/volunteer-portal-go/pkg/certificates/mocks"
	"github.com/arnavshah/volunteer-portal-go/pkg/database"
	"github.com/arnavshah/volunteer-portal-go/pkg/storage"
	"github.com/arnavshah/volunteer-portal-go/pkg/testutil"
)

type fixture struct {
	db    *gorm.DB
	store *storage.LocalStorage
	proof *database.Proof
}

func newFixture(t *testing.T, status database.ProofStatus) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	coord := testutil.CreateCoordinator(t, db, "Cole")
	vol := testutil.CreateVolunteer(t, db, "Ana Ruiz")
	event := testutil.CreateEvent(t, db, coord.ID, "River Cleanup", 40)
	testutil.Register(t, db, vol.ID, event.ID)
	proof := testutil.CreateProof(t, db, vol.ID, event.ID, status)

	return &fixture{db: db, store: store, proof: proof}
}

func (f *fixture) service(r certificates.Renderer) *certificates.Service {
	return certificates.NewService(f.db, r, f.store, zap.NewNop())
}

func (f *fixture) renderer() *certificates.DocumentRenderer {
	return certificates.NewDocumentRenderer(f.store, "verification-secret", "https://portal.example.com/")
}

func countCertificates(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&database.Certificate{}).Count(&n).Error)
	return n
}

func TestDocumentRenderer_Issue(t *testing.T) {
	f := newFixture(t, database.ProofApproved)
	ctx := context.Background()

	var proof database.Proof
	require.NoError(t, f.db.Preload("Volunteer").Preload("Event").First(&proof, f.proof.ID).Error)

	issued, err := f.renderer().Issue(ctx, certificates.IssueRequest{
		Volunteer: *proof.Volunteer,
		Event:     *proof.Event,
		Proof:     proof,
	})
	require.NoError(t, err)

	assert.Regexp(t, `^CERT-[0-9A-F]{12}$`, issued.CertificateID)
	assert.Len(t, issued.VerificationCode, 32)
	assert.NotContains(t, issued.VerificationCode, strings.TrimPrefix(issued.CertificateID, "CERT-"))
	assert.True(t, strings.HasSuffix(issued.ArtifactLocator, ".pdf"))

	doc, err := f.store.Read(ctx, issued.ArtifactLocator)
	require.NoError(t, err)
	pdf := string(doc)
	assert.True(t, strings.HasPrefix(pdf, "%PDF-"))
	assert.Contains(t, pdf, "/Title (Certificate "+issued.CertificateID+")")
	assert.Contains(t, pdf, "Ana Ruiz, River Cleanup, 40 points")
	assert.Contains(t, pdf, "/Subtype /Image")
	assert.Contains(t, pdf, "https://portal.example.com/api/certificates/verify/"+issued.VerificationCode)
}

func TestNewCertificateID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := certificates.NewCertificateID()
		assert.Regexp(t, `^CERT-[0-9A-F]{12}$`, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestService_IssueIsIdempotent(t *testing.T) {
	f := newFixture(t, database.ProofApproved)
	svc := f.service(f.renderer())
	ctx := context.Background()

	first, err := svc.Issue(ctx, f.proof.ID)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, f.proof.ID)
	require.NoError(t, err)

	assert.Equal(t, first.CertificateID, second.CertificateID)
	assert.Equal(t, int64(1), countCertificates(t, f.db))
}

func TestService_IssueRequiresApproval(t *testing.T) {
	for _, status := range []database.ProofStatus{database.ProofPending, database.ProofRejected} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, status)
			ctrl := gomock.NewController(t)
			renderer := mocks.NewMockRenderer(ctrl)

			_, err := f.service(renderer).Issue(context.Background(), f.proof.ID)
			assert.True(t, apperr.Is(err, apperr.Conflict))
			assert.Equal(t, int64(0), countCertificates(t, f.db))
		})
	}
}

func TestService_IssueUnknownProof(t *testing.T) {
	f := newFixture(t, database.ProofApproved)
	_, err := f.service(f.renderer()).Issue(context.Background(), 999)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestService_IssueRenderFailure(t *testing.T) {
	f := newFixture(t, database.ProofApproved)
	ctrl := gomock.NewController(t)
	renderer := mocks.NewMockRenderer(ctrl)
	renderer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(nil, errors.New("font missing"))

	_, err := f.service(renderer).Issue(context.Background(), f.proof.ID)
	assert.True(t, apperr.Is(err, apperr.RenderError))
	assert.Equal(t, int64(0), countCertificates(t, f.db))
}

func TestService_Reissue(t *testing.T) {
	f := newFixture(t, database.ProofApproved)
	svc := f.service(f.renderer())
	ctx := context.Background()

	first, err := svc.Issue(ctx, f.proof.ID)
	require.NoError(t, err)

	replacement, err := svc.Reissue(ctx, f.proof.ID)
	require.NoError(t, err)

	assert.NotEqual(t, first.CertificateID, replacement.CertificateID)
	assert.NotEqual(t, first.VerificationCode, replacement.VerificationCode)
	assert.Equal(t, int64(1), countCertificates(t, f.db))

	_, err = f.store.Read(ctx, first.ArtifactLocator)
	assert.True(t, apperr.Is(err, apperr.NotFound), "old artifact removed")

	v, err := svc.Verify(ctx, first.VerificationCode)
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestService_ReissueRenderFailureKeepsCertificate(t *testing.T) {
	f := newFixture(t, database.ProofApproved)
	ctrl := gomock.NewController(t)
	renderer := mocks.NewMockRenderer(ctrl)
	gomock.InOrder(
		renderer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(&certificates.Issued{
			CertificateID:    "CERT-FIRST",
			ArtifactLocator:  "first.pdf",
			VerificationCode: "CODE1",
		}, nil),
		renderer.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(nil, apperr.New(apperr.RenderError, "renderer offline")),
	)
	svc := f.service(renderer)
	ctx := context.Background()

	_, err := svc.Issue(ctx, f.proof.ID)
	require.NoError(t, err)

	_, err = svc.Reissue(ctx, f.proof.ID)
	assert.True(t, apperr.Is(err, apperr.RenderError))

	cert, err := svc.ForProof(ctx, f.proof.ID)
	require.NoError(t, err)
	assert.Equal(t, "CERT-FIRST", cert.CertificateID)
}

func TestService_ReissueWithoutExisting(t *testing.T) {
	f := newFixture(t, database.ProofApproved)
	svc := f.service(f.renderer())

	cert, err := svc.Reissue(context.Background(), f.proof.ID)
	require.NoError(t, err)
	assert.Equal(t, f.proof.ID, cert.ProofID)
}

func TestService_Verify(t *testing.T) {
	f := newFixture(t, database.ProofApproved)
	svc := f.service(f.renderer())
	ctx := context.Background()

	cert, err := svc.Issue(ctx, f.proof.ID)
	require.NoError(t, err)

	v, err := svc.Verify(ctx, cert.VerificationCode)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, cert.CertificateID, v.CertificateID)
	assert.Equal(t, "Ana Ruiz", v.VolunteerName)
	assert.Equal(t, "River Cleanup", v.EventTitle)
	assert.Equal(t, 40, v.PointsAwarded)

	require.NotNil(t, v.IssuedDate)
	assert.Equal(t, cert.IssuedAt.Unix(), v.IssuedDate.Unix())

	v, err = svc.Verify(ctx, "NOT-A-CODE")
	require.NoError(t, err)
	assert.False(t, v.Valid)

	body, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"valid":false}`, string(body))

	v, err = svc.Verify(ctx, cert.CertificateID)
	require.NoError(t, err)
	assert.False(t, v.Valid, "certificate id is not a verification code")
}

func TestService_Download(t *testing.T) {
	f := newFixture(t, database.ProofApproved)
	svc := f.service(f.renderer())
	ctx := context.Background()

	cert, err := svc.Issue(ctx, f.proof.ID)
	require.NoError(t, err)

	var event database.Event
	require.NoError(t, f.db.First(&event, f.proof.EventID).Error)
	other := testutil.CreateVolunteer(t, f.db, "Ben Okafor")
	otherCoord := testutil.CreateCoordinator(t, f.db, "Dana")

	tests := []struct {
		name    string
		role    database.Role
		account uint
		allowed bool
	}{
		{"owning volunteer", database.RoleVolunteer, f.proof.VolunteerID, true},
		{"event coordinator", database.RoleCoordinator, event.CoordinatorID, true},
		{"other volunteer", database.RoleVolunteer, other.ID, false},
		{"other coordinator", database.RoleCoordinator, otherCoord.ID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, data, err := svc.Download(ctx, cert.CertificateID, tt.role, tt.account)
			if !tt.allowed {
				assert.True(t, apperr.Is(err, apperr.Forbidden), "unexpected error: %v", err)
				assert.Nil(t, data)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, cert.ID, got.ID)
			assert.True(t, strings.HasPrefix(string(data), "%PDF-"))
			assert.Contains(t, string(data), cert.CertificateID)
		})
	}

	_, _, err = svc.Download(ctx, "CERT-MISSING", database.RoleVolunteer, f.proof.VolunteerID)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestQueue_DrainsOnClose(t *testing.T) {
	var mu sync.Mutex
	seen := map[uint]int{}
	q := certificates.NewQueue(certificates.IssuerFunc(func(ctx context.Context, proofID uint) error {
		mu.Lock()
		defer mu.Unlock()
		seen[proofID]++
		if proofID == 3 {
			return errors.New("boom")
		}
		return nil
	}), 2, 16, zap.NewNop())

	for id := uint(1); id <= 5; id++ {
		assert.True(t, q.Enqueue(id))
	}
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 5)
	for id := uint(1); id <= 5; id++ {
		assert.Equal(t, 1, seen[id])
	}

	assert.False(t, q.Enqueue(6))
	q.Close()
}

func TestQueue_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := certificates.NewQueue(certificates.IssuerFunc(func(ctx context.Context, proofID uint) error {
		started <- struct{}{}
		<-release
		return nil
	}), 1, 1, zap.NewNop())

	require.True(t, q.Enqueue(1))
	<-started
	require.True(t, q.Enqueue(2))
	assert.False(t, q.Enqueue(3))

	close(release)
	q.Close()
}
