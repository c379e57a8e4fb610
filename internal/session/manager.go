package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/su-jin-shin/speechflow/internal/audio"
)

// ErrManagerStopped is returned by Create after Stop
var ErrManagerStopped = errors.New("session manager stopped")

// Session is one open utterance socket
type Session struct {
	ID         string
	RemoteAddr string
	Language   string
	StartTime  time.Time

	// Buffer accumulates the current utterance
	Buffer *audio.Buffer

	lastActivity time.Time
	inFlight     int // Transcriptions running for this session

	// Utterance tracking
	utterances  uint64
	transcribed uint64
	rejected    uint64
	failed      uint64

	// Called once when the manager expires or stops the session
	closeFn   func()
	closeOnce sync.Once

	mu sync.RWMutex
}

// SessionInfo is a point-in-time view of a session
type SessionInfo struct {
	ID           string        `json:"id"`
	RemoteAddr   string        `json:"remote_addr"`
	Language     string        `json:"language,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	LastActivity time.Time     `json:"last_activity"`
	Duration     time.Duration `json:"duration"`

	BufferedBytes  int    `json:"buffered_bytes"`
	BufferedChunks uint32 `json:"buffered_chunks"`

	Utterances  uint64 `json:"utterances"`
	Transcribed uint64 `json:"transcribed"`
	Rejected    uint64 `json:"rejected"`
	Failed      uint64 `json:"failed"`
}

// Outcome classifies a finished utterance for the session counters
type Outcome int

const (
	OutcomeTranscribed Outcome = iota // Text returned
	OutcomeRejected                   // Caller-correctable input problem or no speech
	OutcomeFailed                     // Provider or internal fault
)

// Touch marks the session as active
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// BeginTranscription marks the session busy; it is not idle until the
// matching EndTranscription
func (s *Session) BeginTranscription() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight++
	s.lastActivity = time.Now()
}

// EndTranscription clears the busy mark and restarts the idle clock
func (s *Session) EndTranscription() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight > 0 {
		s.inFlight--
	}
	s.lastActivity = time.Now()
}

// idleFor reports how long the session has been idle, zero while busy
func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.inFlight > 0 {
		return 0
	}
	return now.Sub(s.lastActivity)
}

// LastActivity returns the time of the last Touch
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// RecordUtterance counts a finished utterance
func (s *Session) RecordUtterance(outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.utterances++
	switch outcome {
	case OutcomeTranscribed:
		s.transcribed++
	case OutcomeRejected:
		s.rejected++
	default:
		s.failed++
	}
}

// Info returns the session state
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bufStats := s.Buffer.GetStats()

	return SessionInfo{
		ID:             s.ID,
		RemoteAddr:     s.RemoteAddr,
		Language:       s.Language,
		StartTime:      s.StartTime,
		LastActivity:   s.lastActivity,
		Duration:       time.Since(s.StartTime),
		BufferedBytes:  bufStats.SizeBytes,
		BufferedChunks: bufStats.TotalChunks,
		Utterances:     s.utterances,
		Transcribed:    s.transcribed,
		Rejected:       s.rejected,
		Failed:         s.failed,
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		if s.closeFn != nil {
			s.closeFn()
		}
	})
}

// Manager tracks open sessions and closes the ones idle for longer than the timeout
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger

	timeout          time.Duration
	checkInterval    time.Duration
	maxBufferedBytes int

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// ManagerConfig contains configuration for the session manager
type ManagerConfig struct {
	IdleTimeout       time.Duration
	MaxUtteranceBytes int
}

// NewManager creates a session manager and starts its cleanup routine
func NewManager(logger *slog.Logger, config ManagerConfig) (*Manager, error) {
	if config.IdleTimeout <= 0 {
		return nil, fmt.Errorf("idle timeout must be positive, got %s", config.IdleTimeout)
	}

	if config.MaxUtteranceBytes <= 0 {
		return nil, fmt.Errorf("max utterance bytes must be positive, got %d", config.MaxUtteranceBytes)
	}

	checkInterval := config.IdleTimeout / 2
	if checkInterval > 30*time.Second {
		checkInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions:         make(map[string]*Session),
		logger:           logger,
		timeout:          config.IdleTimeout,
		checkInterval:    checkInterval,
		maxBufferedBytes: config.MaxUtteranceBytes,
		ctx:              ctx,
		cancel:           cancel,
		cleanup:          make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr, nil
}

// Create registers a new session. closeFn is called at most once, when the
// session expires or the manager stops; it should make the owner return and
// call Remove.
func (m *Manager) Create(remoteAddr, language string, closeFn func()) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return nil, ErrManagerStopped
	}

	now := time.Now()
	session := &Session{
		ID:           uuid.NewString(),
		RemoteAddr:   remoteAddr,
		Language:     language,
		StartTime:    now,
		Buffer:       audio.NewBuffer(m.maxBufferedBytes),
		lastActivity: now,
		closeFn:      closeFn,
	}

	m.sessions[session.ID] = session

	m.logger.Debug("Session created",
		slog.String("session_id", session.ID),
		slog.String("remote_addr", remoteAddr),
		slog.Int("active_sessions", len(m.sessions)),
	)

	return session, nil
}

// Get returns a session by ID
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// Count returns the number of open sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// All returns every open session
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}

	return sessions
}

// Remove forgets a session and discards its buffered audio
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !exists {
		return false
	}

	session.Buffer.Reset()

	info := session.Info()
	m.logger.Debug("Session removed",
		slog.String("session_id", id),
		slog.Duration("duration", info.Duration),
		slog.Uint64("utterances", info.Utterances),
	)

	return true
}

// Stop closes every session and stops the cleanup routine
func (m *Manager) Stop() {
	m.mu.Lock()
	m.cancel()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.Unlock()

	<-m.cleanup

	for _, session := range sessions {
		session.close()
	}

	m.logger.Info("Session manager stopped", slog.Int("closed_sessions", len(sessions)))
}

func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return

		case <-ticker.C:
			m.closeExpiredSessions()
		}
	}
}

// closeExpiredSessions closes sessions idle for longer than the timeout.
// Sessions waiting on a transcription are never idle. The owner removes them once its connection is closed.
func (m *Manager) closeExpiredSessions() {
	now := time.Now()
	expired := make([]*Session, 0)

	m.mu.RLock()
	for _, session := range m.sessions {
		if session.idleFor(now) > m.timeout {
			expired = append(expired, session)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	m.logger.Info("Closing idle sessions",
		slog.Int("expired_count", len(expired)),
		slog.Duration("idle_timeout", m.timeout),
	)

	for _, session := range expired {
		session.close()
	}
}
