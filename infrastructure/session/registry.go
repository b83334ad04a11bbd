package session

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"dubbing-service/domain/pipeline"
)

const (
	defaultMaxEntries = 10000
	defaultTTL        = 24 * time.Hour
)

// Registry is an in-memory, size and age bounded session repository.
// Evicted sessions are recovered from the artifact store by the orchestrator.
type Registry struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *pipeline.Session]
}

// NewRegistry creates a registry; zero values fall back to defaults
func NewRegistry(maxEntries int, ttl time.Duration) *Registry {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Registry{cache: expirable.NewLRU[string, *pipeline.Session](maxEntries, nil, ttl)}
}

// Get implements pipeline.SessionRepository
func (r *Registry) Get(id string) (*pipeline.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Put implements pipeline.SessionRepository
func (r *Registry) Put(s *pipeline.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Add(s.ID, s.Clone())
}

// Update implements pipeline.SessionRepository
func (r *Registry) Update(id string, fn func(*pipeline.Session)) (*pipeline.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.cache.Get(id)
	if !ok {
		return nil, false
	}
	fn(s)
	r.cache.Add(id, s)
	return s.Clone(), true
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

// Ensure Registry implements pipeline.SessionRepository
var _ pipeline.SessionRepository = (*Registry)(nil)
