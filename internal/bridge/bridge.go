// Package bridge turns viewable queries into evaluate requests against a
// debug session and decodes the replies.
//
// Every session gets an injection state that moves through
// Uninitialized -> Installing -> Ready. The first query for a session
// installs the helper module; later queries skip straight to evaluation.
// Installation is best-effort: a failed install still ends in Ready, and the
// affected viewables fail individually when queried. Only a cancelled or
// ended session returns the state to Uninitialized, so the next query tries
// again.
//
// Operations on one session are serialized; different sessions do not block
// each other. The bridge never retries an evaluation.
package bridge

import (
	"context"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"

	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/internal/inject"
	"github.com/ctagard/dap-viewer/internal/metrics"
	"github.com/ctagard/dap-viewer/internal/pyvalue"
	"github.com/ctagard/dap-viewer/internal/result"
	"github.com/ctagard/dap-viewer/internal/viewable"
	"github.com/ctagard/dap-viewer/pkg/types"
)

// DebugSession is the debug-adapter connection the bridge evaluates through.
type DebugSession interface {
	ID() string
	// Evaluate sends an evaluate request and returns the adapter's result text.
	Evaluate(ctx context.Context, expression string, frameID int, evalCtx types.EvalContext) (string, error)
	// CurrentFrameID returns the frame a user would consider current.
	CurrentFrameID(ctx context.Context) (int, error)
	// Done is closed when the session ends.
	Done() <-chan struct{}
}

// Bridge evaluates viewable queries. The zero value is not usable; use New.
type Bridge struct {
	registry *viewable.Registry
	evalCtx  types.EvalContext
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*injectionState
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithEvalContext sets the evaluate context sent with every request.
func WithEvalContext(c types.EvalContext) Option {
	return func(b *Bridge) {
		b.evalCtx = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		b.logger = l
	}
}

// New creates a bridge over reg.
func New(reg *viewable.Registry, opts ...Option) *Bridge {
	b := &Bridge{
		registry: reg,
		evalCtx:  types.EvalContextRepl,
		logger:   zap.NewNop(),
		sessions: make(map[string]*injectionState),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Classify reports every registered viewable whose predicate accepts the
// selected object. An empty slice means no viewer matches.
func (b *Bridge) Classify(ctx context.Context, sess DebugSession, sel types.Selection) result.Result[[]types.ObjectType] {
	descs := b.registry.All()
	return run(ctx, b, sess, sel, "classify",
		func() string { return inject.ClassifyQuery(sel.Source(), descs) },
		decodeObjectTypes)
}

// Describe returns the info mapping of the selected object, in the order the
// remote helper produced it.
func (b *Bridge) Describe(ctx context.Context, sess DebugSession, sel types.Selection, ot types.ObjectType) result.Result[*orderedmap.OrderedMap[string, string]] {
	d, err := b.registry.Find(ot.Group, ot.Type)
	if err != nil {
		return result.FromError[*orderedmap.OrderedMap[string, string]](err)
	}
	return run(ctx, b, sess, sel, "describe",
		func() string { return d.InfoQuery(sel.Source()) },
		decodeInfo)
}

// Serialize asks the remote side to write the selected object to path and
// returns path. The file itself is not checked.
func (b *Bridge) Serialize(ctx context.Context, sess DebugSession, sel types.Selection, ot types.ObjectType, path string) result.Result[string] {
	if path == "" {
		return result.FromError[string](errors.MissingParameter("path", "Destination file path on the debuggee's filesystem"))
	}
	d, err := b.registry.Find(ot.Group, ot.Type)
	if err != nil {
		return result.FromError[string](err)
	}
	return run(ctx, b, sess, sel, "serialize",
		func() string { return d.SaveQuery(sel.Source(), path) },
		func(v pyvalue.Value) result.Result[string] {
			if _, ok := v.(pyvalue.String); !ok {
				return result.FromError[string](errors.UnexpectedShape("string", v.Kind().String()))
			}
			return result.Ok(path)
		})
}

// EnsureInstalled installs the helpers into sess unless already done, using
// the current frame.
func (b *Bridge) EnsureInstalled(ctx context.Context, sess DebugSession) error {
	st := b.state(sess.ID())
	st.mu.Lock()
	defer st.mu.Unlock()

	frameID, err := b.resolveFrame(ctx, sess, nil)
	if err != nil {
		return err
	}
	return b.install(ctx, sess, st, frameID)
}

// Phase returns the injection phase of a session.
func (b *Bridge) Phase(sessionID string) Phase {
	b.mu.Lock()
	st, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return PhaseUninitialized
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.phase
}

// Script returns the installation script composed for a session, if any.
// A session's script is composed once and not rebuilt for later
// registrations; see Reset.
func (b *Bridge) Script(sessionID string) (string, bool) {
	b.mu.Lock()
	st, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return "", false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.plan == nil {
		return "", false
	}
	return st.plan.Script(), true
}

// Reset returns a session to Uninitialized and discards its composed script,
// so the next query installs the registry as it is now.
func (b *Bridge) Reset(sessionID string) {
	b.mu.Lock()
	st, ok := b.sessions[sessionID]
	b.mu.Unlock()
	if !ok {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.phase = PhaseUninitialized
	st.plan = nil
}

// EndSession drops all state kept for a session.
func (b *Bridge) EndSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
}

func (b *Bridge) state(sessionID string) *injectionState {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.sessions[sessionID]
	if !ok {
		st = &injectionState{}
		b.sessions[sessionID] = st
	}
	return st
}

// run is the common path of every query: resolve the frame, make sure the
// helpers are installed, evaluate, decode.
func run[T any](ctx context.Context, b *Bridge, sess DebugSession, sel types.Selection, query string, build func() string, decode func(pyvalue.Value) result.Result[T]) (res result.Result[T]) {
	defer func(start time.Time) {
		metrics.ObserveQuery(query, res.Error(), time.Since(start))
	}(time.Now())

	st := b.state(sess.ID())
	st.mu.Lock()
	defer st.mu.Unlock()

	frameID, err := b.resolveFrame(ctx, sess, sel)
	if err != nil {
		return result.FromError[T](err)
	}
	if err := b.install(ctx, sess, st, frameID); err != nil {
		return result.FromError[T](err)
	}

	expr := build()
	reply, err := b.evaluate(ctx, sess, expr, frameID)
	if err != nil {
		return result.FromError[T](err)
	}

	parsed := pyvalue.Parse(reply)
	if !parsed.IsOk() && errors.HasCode(parsed.Error(), errors.CodeParseError) {
		b.logger.Debug("Undecodable reply",
			zap.String("session", sess.ID()),
			zap.String("reply", reply),
			zap.Error(parsed.Error()))
	}
	return result.Then(parsed, decode)
}

// resolveFrame returns the pinned frame of sel or asks the session for the
// current one. A nil sel is unpinned.
func (b *Bridge) resolveFrame(ctx context.Context, sess DebugSession, sel types.Selection) (int, error) {
	if sel != nil {
		if id, pinned := sel.Frame(); pinned {
			return id, nil
		}
	}
	if ended(ctx, sess) {
		return 0, errors.SessionEnded(sess.ID())
	}

	id, err := sess.CurrentFrameID(ctx)
	if err != nil {
		if errors.HasCode(err, errors.CodeSessionEnded) || ended(ctx, sess) {
			return 0, errors.SessionEnded(sess.ID())
		}
		return 0, errors.UnresolvedContext(err)
	}
	return id, nil
}

// evaluate sends one request, giving up as soon as the session ends or ctx
// is cancelled.
func (b *Bridge) evaluate(ctx context.Context, sess DebugSession, expr string, frameID int) (string, error) {
	if ended(ctx, sess) {
		return "", errors.SessionEnded(sess.ID())
	}

	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		text, err := sess.Evaluate(ctx, expr, frameID, b.evalCtx)
		ch <- reply{text, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.HasCode(r.err, errors.CodeSessionEnded) || ended(ctx, sess) {
				return "", errors.SessionEnded(sess.ID()).WithCause(r.err)
			}
			return "", errors.EvaluationFailed(expr, r.err)
		}
		return r.text, nil
	case <-ctx.Done():
		return "", errors.SessionEnded(sess.ID()).WithCause(ctx.Err())
	case <-sess.Done():
		return "", errors.SessionEnded(sess.ID())
	}
}

func ended(ctx context.Context, sess DebugSession) bool {
	select {
	case <-ctx.Done():
		return true
	case <-sess.Done():
		return true
	default:
		return false
	}
}
