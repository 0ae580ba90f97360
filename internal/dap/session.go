package dap

import (
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/internal/metrics"
	"github.com/ctagard/dap-viewer/pkg/types"
)

// Session represents an active debug session. It implements
// bridge.DebugSession.
type Session struct {
	id        string
	language  types.Language
	program   string
	createdAt time.Time

	mu         sync.RWMutex
	status     types.SessionStatus
	client     *Client
	process    *exec.Cmd
	pid        int
	lastActive time.Time

	done     chan struct{}
	doneOnce sync.Once
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Client returns the DAP client, or nil before the adapter is connected.
func (s *Session) Client() *Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Evaluate sends an evaluate request and returns the result text.
func (s *Session) Evaluate(ctx context.Context, expression string, frameID int, evalCtx types.EvalContext) (string, error) {
	client := s.Client()
	if client == nil {
		return "", errors.SessionNoClient(s.id)
	}
	s.touch()

	body, err := client.Evaluate(ctx, expression, frameID, string(evalCtx))
	if err != nil {
		if stderrors.Is(err, ErrClosed) {
			return "", errors.SessionEnded(s.id)
		}
		return "", err
	}
	return body.Result, nil
}

// CurrentFrameID returns the top frame of the thread that stopped last, or
// of the first thread when the stop did not name one.
func (s *Session) CurrentFrameID(ctx context.Context) (int, error) {
	client := s.Client()
	if client == nil {
		return 0, errors.SessionNoClient(s.id)
	}

	stopped := client.LastStopped()
	if stopped == nil {
		return 0, fmt.Errorf("program is not stopped")
	}

	threadID := stopped.ThreadID
	if threadID == 0 {
		threads, err := client.Threads(ctx)
		if err != nil {
			return 0, s.mapClosed(err)
		}
		if len(threads) == 0 {
			return 0, errors.NoThreads()
		}
		threadID = threads[0].Id
	}

	frames, err := client.StackTrace(ctx, threadID, 0, 1)
	if err != nil {
		return 0, s.mapClosed(err)
	}
	if len(frames) == 0 {
		return 0, fmt.Errorf("thread %d has no stack frames", threadID)
	}
	return frames[0].Id, nil
}

func (s *Session) mapClosed(err error) error {
	if stderrors.Is(err, ErrClosed) {
		return errors.SessionEnded(s.id)
	}
	return err
}

// Info returns a snapshot for listing.
func (s *Session) Info() types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := s.status
	select {
	case <-s.done:
		status = types.SessionStatusTerminated
	default:
		if s.client != nil && s.client.LastStopped() != nil {
			status = types.SessionStatusStopped
		}
	}

	return types.SessionInfo{
		SessionID: s.id,
		Language:  s.language,
		Status:    status,
		PID:       s.pid,
		Program:   s.program,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

func (s *Session) end() {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.status = types.SessionStatusTerminated
		s.mu.Unlock()
		close(s.done)
	})
}

// SessionManager manages multiple debug sessions
type SessionManager struct {
	sessions map[string]*Session
	onEnd    []func(id string)
	mu       sync.RWMutex

	maxSessions     int
	sessionTimeout  time.Duration
	cleanupInterval time.Duration
	logger          *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ManagerOption configures a SessionManager.
type ManagerOption func(*SessionManager)

// WithManagerLogger sets the session manager logger.
func WithManagerLogger(l *zap.Logger) ManagerOption {
	return func(sm *SessionManager) {
		sm.logger = l
	}
}

// WithCleanupInterval sets how often idle sessions are expired.
func WithCleanupInterval(d time.Duration) ManagerOption {
	return func(sm *SessionManager) {
		sm.cleanupInterval = d
	}
}

// NewSessionManager creates a new session manager
func NewSessionManager(maxSessions int, sessionTimeout time.Duration, opts ...ManagerOption) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	sm := &SessionManager{
		sessions:        make(map[string]*Session),
		maxSessions:     maxSessions,
		sessionTimeout:  sessionTimeout,
		cleanupInterval: time.Minute,
		logger:          zap.NewNop(),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(sm)
	}

	sm.wg.Add(1)
	go sm.cleanupLoop()

	return sm
}

// OnEnd registers fn to run after a session ends for any reason.
func (sm *SessionManager) OnEnd(fn func(id string)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onEnd = append(sm.onEnd, fn)
}

// cleanupLoop periodically ends idle sessions
func (sm *SessionManager) cleanupLoop() {
	defer sm.wg.Done()

	ticker := time.NewTicker(sm.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-ticker.C:
			sm.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions ends sessions idle for longer than the timeout
func (sm *SessionManager) cleanupExpiredSessions() {
	sm.mu.RLock()
	var expired []string
	now := time.Now()
	for id, session := range sm.sessions {
		if now.Sub(session.idleSince()) > sm.sessionTimeout {
			expired = append(expired, id)
		}
	}
	sm.mu.RUnlock()

	for _, id := range expired {
		sm.logger.Info("Ending idle session", zap.String("session", id))
		if err := sm.TerminateSession(sm.ctx, id, true); err != nil {
			sm.logger.Debug("Idle session already gone", zap.String("session", id), zap.Error(err))
		}
	}
}

// CreateSession creates a new debug session
func (sm *SessionManager) CreateSession(language types.Language, program string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.maxSessions {
		return nil, errors.SessionLimitReached(sm.maxSessions)
	}

	now := time.Now()
	session := &Session{
		id:         uuid.NewString(),
		language:   language,
		status:     types.SessionStatusInitializing,
		program:    program,
		createdAt:  now,
		lastActive: now,
		done:       make(chan struct{}),
	}

	sm.sessions[session.id] = session
	metrics.SetSessionsActive(len(sm.sessions))
	sm.logger.Debug("Session created", zap.String("session", session.id), zap.String("program", program))
	return session, nil
}

// GetSession retrieves a session by ID
func (sm *SessionManager) GetSession(id string) (*Session, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, ok := sm.sessions[id]
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	return session, nil
}

// ListSessions returns all active sessions, oldest first
func (sm *SessionManager) ListSessions() []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sessions := make([]*Session, 0, len(sm.sessions))
	for _, session := range sm.sessions {
		sessions = append(sessions, session)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].createdAt.Before(sessions[j].createdAt)
	})
	return sessions
}

// SetSessionClient attaches the DAP client and ends the session when the
// client reports the debuggee is gone.
func (sm *SessionManager) SetSessionClient(id string, client *Client) error {
	session, err := sm.GetSession(id)
	if err != nil {
		return err
	}

	session.mu.Lock()
	session.client = client
	session.mu.Unlock()

	sm.wg.Add(1)
	go sm.watch(session, client)
	return nil
}

// watch ends the session once its client is done.
func (sm *SessionManager) watch(s *Session, client *Client) {
	defer sm.wg.Done()

	select {
	case <-client.Done():
		sm.logger.Info("Debug adapter ended session", zap.String("session", s.id))
		ctx, cancel := context.WithTimeout(sm.ctx, 2*time.Second)
		defer cancel()
		_ = sm.TerminateSession(ctx, s.id, false) // already gone if terminated explicitly
	case <-s.done:
	case <-sm.ctx.Done():
	}
}

// SetSessionProcess records the spawned adapter process for a session
func (sm *SessionManager) SetSessionProcess(id string, cmd *exec.Cmd, pid int) error {
	session, err := sm.GetSession(id)
	if err != nil {
		return err
	}

	session.mu.Lock()
	session.process = cmd
	session.pid = pid
	session.mu.Unlock()
	return nil
}

// UpdateSessionStatus updates the status of a session
func (sm *SessionManager) UpdateSessionStatus(id string, status types.SessionStatus) error {
	session, err := sm.GetSession(id)
	if err != nil {
		return err
	}

	session.mu.Lock()
	session.status = status
	session.mu.Unlock()
	return nil
}

// TerminateSession disconnects from the adapter, kills the adapter process
// and runs the end hooks.
func (sm *SessionManager) TerminateSession(ctx context.Context, id string, terminateDebuggee bool) error {
	sm.mu.Lock()
	session, ok := sm.sessions[id]
	if !ok {
		sm.mu.Unlock()
		return errors.SessionNotFound(id)
	}
	delete(sm.sessions, id)
	metrics.SetSessionsActive(len(sm.sessions))
	hooks := append([]func(string){}, sm.onEnd...)
	sm.mu.Unlock()

	sm.shutdown(ctx, session, terminateDebuggee)

	for _, fn := range hooks {
		fn(id)
	}
	return nil
}

func (sm *SessionManager) shutdown(ctx context.Context, session *Session, terminateDebuggee bool) {
	log := sm.logger.With(zap.String("session", session.id))

	session.mu.RLock()
	client, process, pid := session.client, session.process, session.pid
	session.mu.RUnlock()

	if client != nil {
		if err := client.Disconnect(ctx, terminateDebuggee); err != nil {
			log.Debug("Disconnect failed, continuing cleanup", zap.Error(err))
		}
		if err := client.Close(); err != nil {
			log.Warn("Failed to close DAP client", zap.Error(err))
		}
	}

	// Uses platform-specific implementation (process_unix.go / process_windows.go)
	if err := killProcessGroup(pid, process); err != nil {
		log.Warn("Failed to kill adapter process group", zap.Int("pid", pid), zap.Error(err))
	}

	session.end()
	log.Info("Session ended")
}

// Close ends every session and stops background work
func (sm *SessionManager) Close() {
	sm.mu.RLock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			_ = sm.TerminateSession(ctx, id, true) // concurrent terminate may have won
			return nil
		})
	}
	_ = g.Wait()

	sm.cancel()
	sm.wg.Wait()
}
