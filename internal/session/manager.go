package session

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/examind/examind-backend/internal/model"
	"github.com/rs/zerolog"
)

// Manager owns the live controllers, one per composite session key, and
// drives their countdowns from a single 1-second sweeper. There is never more
// than one writer per key by construction: Attach returns the existing
// controller when the key is already live.
type Manager struct {
	mu       sync.Mutex
	sessions map[model.SessionKey]*Controller

	store SnapshotStore
	sink  ResultSink
	now   func() time.Time
	log   zerolog.Logger
}

// NewManager creates a session manager.
func NewManager(store SnapshotStore, sink ResultSink, log zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[model.SessionKey]*Controller),
		store:    store,
		sink:     sink,
		now:      time.Now,
		log:      log.With().Str("component", "session_manager").Logger(),
	}
}

// Attach returns the live controller for the key, constructing one (restored
// from its snapshot when available) if none is running. The second return
// value reports whether an existing session — live or snapshotted — was
// resumed.
func (m *Manager) Attach(ctx context.Context, key model.SessionKey, exam *model.Exam) (*Controller, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctrl, ok := m.sessions[key]; ok && !ctrl.Finalized() {
		return ctrl, true, nil
	}

	ctrl, restored, err := New(ctx, key, exam, Deps{
		Store: m.store,
		Sink:  m.sink,
		Now:   m.now,
		Rand:  rand.New(rand.NewSource(m.now().UnixNano())),
		Log:   m.log,
	})
	if err != nil {
		return nil, false, fmt.Errorf("attach session: %w", err)
	}

	m.sessions[key] = ctrl
	return ctrl, restored, nil
}

// Get returns the live controller for the key, or nil.
func (m *Manager) Get(key model.SessionKey) *Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[key]
}

// ActiveCount returns the number of live (non-finalized) sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, ctrl := range m.sessions {
		if !ctrl.Finalized() {
			n++
		}
	}
	return n
}

// StartSweeper runs the countdown loop until ctx is cancelled. Call in a
// goroutine. Each second every active session ticks once; sessions that
// finalize (timeout or otherwise) are dropped from the live set.
func (m *Manager) StartSweeper(ctx context.Context) {
	m.log.Info().Msg("Session sweeper started")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("Session sweeper stopped")
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Manager) sweep(ctx context.Context) {
	m.mu.Lock()
	controllers := make([]*Controller, 0, len(m.sessions))
	for _, ctrl := range m.sessions {
		controllers = append(controllers, ctrl)
	}
	m.mu.Unlock()

	for _, ctrl := range controllers {
		if _, err := ctrl.Tick(ctx); err != nil {
			m.log.Error().Err(err).
				Str("exam_id", ctrl.Key().ExamID.String()).
				Msg("Tick snapshot write failed")
		}
	}

	m.mu.Lock()
	for key, ctrl := range m.sessions {
		if ctrl.Finalized() {
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()
}
