package certificates

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arnavshah/volunteer-portal-go/pkg/metrics"
)

// Issuer is what the queue workers call for each job
type Issuer interface {
	Issue(ctx context.Context, proofID uint) error
}

// IssuerFunc adapts a function to Issuer
type IssuerFunc func(ctx context.Context, proofID uint) error

func (f IssuerFunc) Issue(ctx context.Context, proofID uint) error { return f(ctx, proofID) }

// Queue issues certificates in the background after approvals commit.
// Failed jobs are logged and dropped; RegenerateCertificate repairs them.
type Queue struct {
	issuer  Issuer
	jobs    chan uint
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

// NewQueue starts workers goroutines draining a buffer of pending proof ids
func NewQueue(issuer Issuer, workers, buffer int, logger *zap.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 64
	}
	q := &Queue{
		issuer:  issuer,
		jobs:    make(chan uint, buffer),
		logger:  logger,
		timeout: 30 * time.Second,
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// Enqueue schedules issuance for proofID without blocking.
// It returns false when the queue is full or closed.
func (q *Queue) Enqueue(proofID uint) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.RecordCertificate("dropped")
		return false
	}
	select {
	case q.jobs <- proofID:
		return true
	default:
		metrics.RecordCertificate("dropped")
		q.logger.Warn("certificate queue full, dropping job", zap.Uint("proof_id", proofID))
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish
func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.jobs)
		q.mu.Unlock()
	})
	q.wg.Wait()
}

func (q *Queue) work() {
	defer q.wg.Done()
	for proofID := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := q.issuer.Issue(ctx, proofID); err != nil {
			q.logger.Error("background certificate issuance failed",
				zap.Uint("proof_id", proofID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
