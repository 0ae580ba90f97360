package dap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/pkg/types"
)

func connectedSession(t *testing.T, sm *SessionManager) (*fakeAdapter, *Session) {
	t.Helper()
	a, c := newFakeAdapter(t, debugpyLike)
	s, err := sm.CreateSession(types.LanguagePython, "/tmp/train.py")
	require.NoError(t, err)
	require.NoError(t, sm.SetSessionClient(s.ID(), c))
	return a, s
}

// TestSessionManager_CreateSession verifies session creation.
func TestSessionManager_CreateSession(t *testing.T) {
	sm := NewSessionManager(10, 30*time.Minute)
	defer sm.Close()

	s, err := sm.CreateSession(types.LanguagePython, "/path/to/program.py")
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID())
	info := s.Info()
	assert.Equal(t, s.ID(), info.SessionID)
	assert.Equal(t, types.LanguagePython, info.Language)
	assert.Equal(t, "/path/to/program.py", info.Program)
	assert.Equal(t, types.SessionStatusInitializing, info.Status)
}

// TestSessionManager_MaxSessions verifies max session limit enforcement.
func TestSessionManager_MaxSessions(t *testing.T) {
	sm := NewSessionManager(2, 30*time.Minute)
	defer sm.Close()

	_, err := sm.CreateSession(types.LanguagePython, "/path/1.py")
	require.NoError(t, err)
	_, err = sm.CreateSession(types.LanguagePython, "/path/2.py")
	require.NoError(t, err)

	_, err = sm.CreateSession(types.LanguagePython, "/path/3.py")
	assert.True(t, errors.HasCode(err, errors.CodeSessionLimitReached))
}

// TestSessionManager_GetAndList verifies lookup and creation-order listing.
func TestSessionManager_GetAndList(t *testing.T) {
	sm := NewSessionManager(10, 30*time.Minute)
	defer sm.Close()

	first, err := sm.CreateSession(types.LanguagePython, "/a.py")
	require.NoError(t, err)
	second, err := sm.CreateSession(types.LanguagePython, "/b.py")
	require.NoError(t, err)

	got, err := sm.GetSession(first.ID())
	require.NoError(t, err)
	assert.Same(t, first, got)

	_, err = sm.GetSession("missing")
	assert.True(t, errors.HasCode(err, errors.CodeSessionNotFound))

	list := sm.ListSessions()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID(), list[0].ID())
	assert.Equal(t, second.ID(), list[1].ID())
}

// TestSessionManager_TerminateRunsHooks verifies Done and the end hooks.
func TestSessionManager_TerminateRunsHooks(t *testing.T) {
	sm := NewSessionManager(10, 30*time.Minute)
	defer sm.Close()

	var mu sync.Mutex
	var ended []string
	sm.OnEnd(func(id string) {
		mu.Lock()
		ended = append(ended, id)
		mu.Unlock()
	})

	a, s := connectedSession(t, sm)
	require.NoError(t, sm.TerminateSession(context.Background(), s.ID(), true))

	select {
	case <-s.Done():
	default:
		t.Fatal("session not done after terminate")
	}
	assert.Equal(t, types.SessionStatusTerminated, s.Info().Status)

	mu.Lock()
	assert.Equal(t, []string{s.ID()}, ended)
	mu.Unlock()

	var sawDisconnect bool
	for len(a.requests) > 0 {
		if d, ok := (<-a.requests).(*dap.DisconnectRequest); ok {
			sawDisconnect = d.Arguments.TerminateDebuggee
		}
	}
	assert.True(t, sawDisconnect)

	err := sm.TerminateSession(context.Background(), s.ID(), true)
	assert.True(t, errors.HasCode(err, errors.CodeSessionNotFound))
}

// TestSessionManager_AdapterEndsSession verifies a terminated event ends the session.
func TestSessionManager_AdapterEndsSession(t *testing.T) {
	sm := NewSessionManager(10, 30*time.Minute)
	defer sm.Close()

	ended := make(chan string, 1)
	sm.OnEnd(func(id string) { ended <- id })

	a, s := connectedSession(t, sm)
	a.send(&dap.TerminatedEvent{Event: a.event("terminated")})

	select {
	case id := <-ended:
		assert.Equal(t, s.ID(), id)
	case <-time.After(2 * time.Second):
		t.Fatal("end hook not called")
	}
	<-s.Done()

	_, err := sm.GetSession(s.ID())
	assert.Error(t, err)
}

// TestSessionManager_IdleCleanup verifies idle sessions expire.
func TestSessionManager_IdleCleanup(t *testing.T) {
	sm := NewSessionManager(10, 20*time.Millisecond, WithCleanupInterval(10*time.Millisecond))
	defer sm.Close()

	s, err := sm.CreateSession(types.LanguagePython, "/idle.py")
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("idle session not cleaned up")
	}
	assert.Empty(t, sm.ListSessions())
}

// TestSession_Evaluate verifies evaluation through the session.
func TestSession_Evaluate(t *testing.T) {
	sm := NewSessionManager(10, 30*time.Minute)
	defer sm.Close()
	_, s := connectedSession(t, sm)

	out, err := s.Evaluate(context.Background(), "img", 1, types.EvalContextRepl)
	require.NoError(t, err)
	assert.Equal(t, "'Value(42)'", out)

	_, err = s.Evaluate(context.Background(), "boom", 1, types.EvalContextRepl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NameError")
}

// TestSession_EvaluateWithoutClient verifies the no-client error.
func TestSession_EvaluateWithoutClient(t *testing.T) {
	sm := NewSessionManager(10, 30*time.Minute)
	defer sm.Close()

	s, err := sm.CreateSession(types.LanguagePython, "/x.py")
	require.NoError(t, err)

	_, err = s.Evaluate(context.Background(), "x", 1, types.EvalContextRepl)
	assert.True(t, errors.HasCode(err, errors.CodeSessionNoClient))
}

// TestSession_EvaluateAfterEnd verifies a closed client reports session ended.
func TestSession_EvaluateAfterEnd(t *testing.T) {
	sm := NewSessionManager(10, 30*time.Minute)
	defer sm.Close()
	a, s := connectedSession(t, sm)

	a.close()
	<-s.Client().Done()

	_, err := s.Evaluate(context.Background(), "x", 1, types.EvalContextRepl)
	assert.True(t, errors.HasCode(err, errors.CodeSessionEnded))
}

// TestSession_CurrentFrameID verifies the top frame of the stopped thread is used.
func TestSession_CurrentFrameID(t *testing.T) {
	sm := NewSessionManager(10, 30*time.Minute)
	defer sm.Close()
	a, s := connectedSession(t, sm)
	ctx := context.Background()

	_, err := s.CurrentFrameID(ctx)
	assert.Error(t, err, "not stopped yet")

	a.stopped(4)
	require.Eventually(t, func() bool { return s.Client().LastStopped() != nil }, 2*time.Second, 5*time.Millisecond)

	id, err := s.CurrentFrameID(ctx)
	require.NoError(t, err)
	assert.Equal(t, 104, id)
	assert.Equal(t, types.SessionStatusStopped, s.Info().Status)
}

// TestSession_CurrentFrameIDNoThread verifies the first thread is used when
// the stop names none.
func TestSession_CurrentFrameIDNoThread(t *testing.T) {
	sm := NewSessionManager(10, 30*time.Minute)
	defer sm.Close()
	a, s := connectedSession(t, sm)

	a.stopped(0)
	require.Eventually(t, func() bool { return s.Client().LastStopped() != nil }, 2*time.Second, 5*time.Millisecond)

	id, err := s.CurrentFrameID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 103, id)
}
