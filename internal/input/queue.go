package input

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultQueueSize bounds the hit queue when no size is configured.
const DefaultQueueSize = 256

// ErrQueueOverflow reports that the oldest unconsumed hit was dropped.
var ErrQueueOverflow = errors.New("hit queue overflow")

// Queue is a bounded ring buffer between the input and frame contexts.
// Push never blocks; on overflow the oldest hit is dropped.
type Queue struct {
	mu       sync.Mutex
	buf      []LiveHit
	head     int
	size     int
	dropped  uint64
	degraded bool

	logger  *zap.Logger
	limiter *rate.Limiter
}

// NewQueue creates a queue holding up to capacity hits.
func NewQueue(capacity int, logger *zap.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		buf:     make([]LiveHit, capacity),
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Push appends h. It returns ErrQueueOverflow when a hit had to be dropped.
func (q *Queue) Push(h LiveHit) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var err error
	if q.size == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped++
		q.degraded = true
		err = ErrQueueOverflow
		if q.limiter.Allow() {
			q.logger.Warn("hit queue overflow, dropping oldest",
				zap.Uint64("dropped", q.dropped),
				zap.Int("capacity", len(q.buf)))
		}
	}
	q.buf[(q.head+q.size)%len(q.buf)] = h
	q.size++
	return err
}

// Drain appends every queued hit to dst in push order and empties the queue.
func (q *Queue) Drain(dst []LiveHit) []LiveHit {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := 0; i < q.size; i++ {
		dst = append(dst, q.buf[(q.head+i)%len(q.buf)])
	}
	q.head = 0
	q.size = 0
	return dst
}

// Len returns the number of queued hits.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns the number of hits dropped since the last Reset.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Degraded reports whether any hit was dropped since the last Reset.
func (q *Queue) Degraded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.degraded
}

// Reset empties the queue and clears the drop count and degraded flag.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.head = 0
	q.size = 0
	q.dropped = 0
	q.degraded = false
}
