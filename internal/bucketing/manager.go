package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"

	"otp-auth-service/internal/config"
)

// Manager maps emails onto a fixed set of storage buckets so wide partitions
// in Scylla stay bounded. The same email always lands in the same bucket.
type Manager struct {
	emailBuckets int
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		emailBuckets: cfg.Bucketing.EmailBuckets,
		eventBuckets: cfg.Bucketing.EventBuckets,
	}

	// Pool of hash states to avoid per-call allocation
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// EmailBucket returns the partition bucket for an email (0..emailBuckets-1).
func (m *Manager) EmailBucket(email string) int {
	return m.bucketFor(email, m.emailBuckets)
}

// EventBucket returns the partition bucket for a security event row.
func (m *Manager) EventBucket(email string) int {
	return m.bucketFor(email, m.eventBuckets)
}

func (m *Manager) bucketFor(key string, buckets int) int {
	if buckets <= 0 {
		return 0
	}

	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(key))

	return int(hasher.Sum64() % uint64(buckets))
}
