package bridge

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ctagard/dap-viewer/internal/errors"
	"github.com/ctagard/dap-viewer/internal/inject"
	"github.com/ctagard/dap-viewer/internal/metrics"
	"github.com/ctagard/dap-viewer/internal/pyvalue"
)

// Phase is the injection progress of one session.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseInstalling
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseInstalling:
		return "installing"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// injectionState is guarded by mu, which is held for the whole of every
// operation on the session.
type injectionState struct {
	mu    sync.Mutex
	phase Phase
	plan  *inject.Plan
}

// install drives the state machine. The caller holds st.mu.
func (b *Bridge) install(ctx context.Context, sess DebugSession, st *injectionState, frameID int) error {
	if st.phase == PhaseReady {
		return nil
	}

	log := b.logger.With(zap.String("session", sess.ID()))

	st.phase = PhaseInstalling
	if st.plan == nil {
		st.plan = inject.NewPlan(b.registry.All())
		for key, reason := range st.plan.Failed() {
			log.Warn("Viewable setup unavailable", zap.String("viewable", key), zap.String("reason", reason))
		}
	}

	reply, err := b.evaluate(ctx, sess, st.plan.Script(), frameID)
	metrics.RecordInstall(err)
	if err != nil {
		if errors.HasCode(err, errors.CodeSessionEnded) {
			st.phase = PhaseUninitialized
			return err
		}
		log.Warn("Helper installation failed", zap.Error(err))
		st.phase = PhaseReady
		return nil
	}
	log.Debug("Helpers installed", zap.String("reply", reply), zap.Int("viewables", len(st.plan.Blocks())))

	st.phase = PhaseReady
	b.logSetupReport(ctx, sess, frameID, log)
	return nil
}

// logSetupReport fetches the remote setup failures once after installation.
// It is diagnostic only and never fails the caller.
func (b *Bridge) logSetupReport(ctx context.Context, sess DebugSession, frameID int, log *zap.Logger) {
	reply, err := b.evaluate(ctx, sess, inject.ReportQuery(), frameID)
	if err != nil {
		log.Debug("Setup report unavailable", zap.Error(err))
		return
	}

	v, err := pyvalue.Parse(reply).Get()
	if err != nil {
		log.Debug("Setup report unreadable", zap.Error(err))
		return
	}
	report, ok := v.(pyvalue.Mapping)
	if !ok {
		return
	}
	for _, e := range report {
		msg, _ := e.Value.(pyvalue.String)
		log.Warn("Viewable setup failed in debuggee", zap.String("viewable", e.Key), zap.String("error", string(msg)))
	}
}
