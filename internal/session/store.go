package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"poster/internal/canvas"
	"poster/internal/domain"
	"poster/internal/infra"
)

// Options configures a Store.
type Options struct {
	TTL    time.Duration
	Layout canvas.Layout
	Logger *infra.Logger
	Now    func() time.Time
}

// Store holds sessions until they have been idle for longer than the TTL.
type Store struct {
	ttl    time.Duration
	layout canvas.Layout
	logger *infra.Logger
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	layout := opts.Layout
	if layout.Width == 0 {
		layout = canvas.DefaultLayout()
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		ttl:      ttl,
		layout:   layout,
		logger:   logger,
		now:      now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session.
func (st *Store) Create() *Session {
	s := newSession(uuid.NewString(), st.layout, st.now(), st.logger)
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	st.logger.Debug().Str("session_id", s.ID).Msg("session: created")
	return s
}

// Get returns the session and marks it as active.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.touch(st.now())
	return s, nil
}

// Delete discards a session.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.Reset()
	return nil
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were removed.
func (st *Store) Sweep() int {
	cutoff := st.now().Add(-st.ttl)
	var expired []*Session
	st.mu.Lock()
	for id, s := range st.sessions {
		if s.LastSeen().Before(cutoff) {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()
	for _, s := range expired {
		s.Reset()
	}
	return len(expired)
}

// Run sweeps periodically until ctx is done.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = st.ttl / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(); n > 0 {
				st.logger.Info().Int("evicted", n).Int("live", st.Len()).Msg("session: expired sessions evicted")
			}
		}
	}
}
