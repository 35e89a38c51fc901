package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"showrunner/internal/logging"
	"showrunner/internal/progress"
	"showrunner/internal/services"
	"showrunner/internal/session"
	"showrunner/internal/stage"
	"showrunner/internal/workspace"
)

func (e *Engine) run(ctx context.Context, w *worker, sess *session.Session, ws *workspace.Workspace, hasGaps bool) {
	defer e.wg.Done()
	defer e.removeWorker(sess.ID)

	logger := e.logger.With(
		logging.String(logging.FieldSessionID, sess.ID),
		logging.String(logging.FieldWorkspace, ws.Root),
	)

	if err := e.store.UpdateStatus(ctx, sess.ID, session.StatusRunning); err != nil {
		logger.Error("failed to transition session to running", logging.Error(err))
		return
	}

	if hasGaps {
		e.bus.Publish(progress.Event{
			SessionID: sess.ID,
			Kind:      progress.KindWarning,
			Message:   "stage selection has gaps; unselected stages' outputs are assumed to exist",
		})
		logger.Warn("stage selection has gaps",
			logging.String(logging.FieldEventType, "selection_gap"),
			logging.String(logging.FieldErrorHint, "ensure earlier stage outputs exist in the workspace"),
		)
	}

	total := len(sess.Stages)
	completed := 0
	input := ""

	for i, st := range sess.Stages {
		if w.stop.Load() {
			e.finishInterrupted(sess, ws, logger, "stop requested")
			return
		}

		def, ok := stage.ByIndex(st.Index)
		if !ok {
			// Selection was validated at submission; this cannot happen short
			// of a registry change between releases.
			e.failSession(sess, ws, logger, st,
				services.Wrap(services.ErrValidation, st.Name, "execute", "stage not in registry", nil))
			return
		}

		if def.SkippableIfOutputExists {
			if found, ok := ws.DiscoverOutput(def.OutputPath); ok {
				now := time.Now().UTC()
				st.Status = session.StageSkipped
				st.StartedAt = &now
				st.EndedAt = &now
				st.OutputRef = found
				if err := e.store.UpdateStageState(ctx, sess.ID, st); err != nil {
					logger.Error("failed to persist skipped stage", logging.Error(err))
					e.failSession(sess, ws, logger, st, err)
					return
				}
				completed++
				e.bus.Publish(progress.Event{
					SessionID:       sess.ID,
					StageIndex:      st.Index,
					Stage:           def.Name,
					Kind:            progress.KindStageCompleted,
					Status:          string(session.StageSkipped),
					ProgressPercent: percent(completed, total),
					Message:         "existing output found; stage skipped",
				})
				logger.Info("stage skipped",
					logging.String(logging.FieldStage, def.Name),
					logging.Int(logging.FieldStageIndex, st.Index),
					logging.String(logging.FieldEventType, "stage_skipped"),
					logging.String("output_ref", found),
				)
				input = found
				continue
			}
		}

		if i == 0 && st.Index > 1 {
			input = e.resolveGapInput(ws, sess, st.Index)
		}
		if input == "" {
			input = sess.SourceInput
		}

		started := time.Now().UTC()
		st.Status = session.StageRunning
		st.StartedAt = &started
		st.EndedAt = nil
		if err := e.store.UpdateStageState(ctx, sess.ID, st); err != nil {
			logger.Error("failed to persist stage start", logging.Error(err))
			e.failSession(sess, ws, logger, st, err)
			return
		}
		e.bus.Publish(progress.Event{
			SessionID:       sess.ID,
			StageIndex:      st.Index,
			Stage:           def.Name,
			Kind:            progress.KindStageStarted,
			Status:          string(session.StageRunning),
			ProgressPercent: percent(completed, total),
			Message:         fmt.Sprintf("%s started", def.Name),
		})
		logger.Info("stage started",
			logging.String(logging.FieldStage, def.Name),
			logging.Int(logging.FieldStageIndex, st.Index),
			logging.String(logging.FieldEventType, "stage_start"),
		)

		output, execErr := e.invoke(ctx, sess, def, ws, input)
		ended := time.Now().UTC()
		st.EndedAt = &ended

		if execErr != nil {
			if ctx.Err() != nil && errors.Is(execErr, context.Canceled) {
				// Daemon shutdown cut the stage off mid-run. The stage may
				// have partially written output, so it goes back to pending
				// and the session is interrupted, same as crash recovery.
				st.Status = session.StagePending
				st.StartedAt = nil
				st.EndedAt = nil
				_ = e.store.UpdateStageState(context.Background(), sess.ID, st)
				e.finishInterrupted(sess, ws, logger, "daemon shutdown")
				return
			}
			if !errors.Is(execErr, services.ErrTimeout) && !errors.Is(execErr, services.ErrStage) {
				execErr = services.Wrap(services.ErrStage, def.Name, "execute", "", execErr)
			}
			st.Status = session.StageFailed
			st.Error = execErr.Error()
			if err := e.store.UpdateStageState(ctx, sess.ID, st); err != nil {
				logger.Error("failed to persist stage failure", logging.Error(err))
			}
			e.bus.Publish(progress.Event{
				SessionID:       sess.ID,
				StageIndex:      st.Index,
				Stage:           def.Name,
				Kind:            progress.KindStageFailed,
				Status:          string(session.StageFailed),
				ProgressPercent: percent(completed, total),
				Message:         execErr.Error(),
			})
			logger.Error("stage failed",
				logging.String(logging.FieldStage, def.Name),
				logging.Int(logging.FieldStageIndex, st.Index),
				logging.String(logging.FieldEventType, "stage_failed"),
				logging.Error(execErr),
				logging.String(logging.FieldErrorHint, "inspect the stage error and rerun the session"),
			)
			e.failSession(sess, ws, logger, st, execErr)
			return
		}

		st.Status = session.StageCompleted
		st.OutputRef = output
		st.Error = ""
		if err := e.store.UpdateStageState(ctx, sess.ID, st); err != nil {
			logger.Error("failed to persist stage result", logging.Error(err))
			e.failSession(sess, ws, logger, st, err)
			return
		}
		completed++
		e.bus.Publish(progress.Event{
			SessionID:       sess.ID,
			StageIndex:      st.Index,
			Stage:           def.Name,
			Kind:            progress.KindStageCompleted,
			Status:          string(session.StageCompleted),
			ProgressPercent: percent(completed, total),
			Message:         fmt.Sprintf("%s completed", def.Name),
		})
		logger.Info("stage completed",
			logging.String(logging.FieldStage, def.Name),
			logging.Int(logging.FieldStageIndex, st.Index),
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", ended.Sub(started)),
			logging.String("output_ref", output),
		)
		input = output
	}

	if err := e.store.UpdateStatus(ctx, sess.ID, session.StatusCompleted); err != nil {
		logger.Error("failed to transition session to completed", logging.Error(err))
		return
	}
	e.bus.Publish(progress.Event{
		SessionID:       sess.ID,
		Kind:            progress.KindSessionCompleted,
		Status:          string(session.StatusCompleted),
		ProgressPercent: 100,
		Message:         "all selected stages finished",
	})
	logger.Info("session completed", logging.String(logging.FieldEventType, "session_complete"))
	if err := e.notifier.NotifySessionCompleted(context.Background(), ws.DisplayTitle(), input); err != nil {
		logger.Warn("completion notification failed", logging.Error(err))
	}
}

// invoke runs one stage function under the optional per-stage timeout while a
// heartbeat goroutine keeps the session row fresh.
func (e *Engine) invoke(ctx context.Context, sess *session.Session, def stage.Definition, ws *workspace.Workspace, input string) (string, error) {
	stageCtx := ctx
	var cancel context.CancelFunc
	if e.cfg.Engine.StageTimeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, time.Duration(e.cfg.Engine.StageTimeout)*time.Second)
		defer cancel()
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go e.heartbeatLoop(hbCtx, &hbWG, sess.ID)

	output, err := e.stages[def.Index](stageCtx, stage.Request{
		SessionID:     sess.ID,
		WorkspaceRoot: ws.Root,
		Input:         input,
	})
	hbCancel()
	hbWG.Wait()

	if err != nil && stageCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return "", services.Wrap(services.ErrTimeout, def.Name, "execute",
			fmt.Sprintf("stage exceeded %ds timeout", e.cfg.Engine.StageTimeout), err)
	}
	return output, err
}

func (e *Engine) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, sessionID string) {
	defer wg.Done()
	interval := time.Duration(e.cfg.Engine.HeartbeatInterval) * time.Second
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.store.Heartbeat(ctx, sessionID); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Warn("heartbeat update failed",
					logging.String(logging.FieldSessionID, sessionID),
					logging.Error(err),
				)
			}
		}
	}
}

// resolveGapInput finds the input for a first selected stage deeper in the
// pipeline: the nearest earlier stage's discovered output, falling back to
// the session's source input.
func (e *Engine) resolveGapInput(ws *workspace.Workspace, sess *session.Session, index int) string {
	for earlier := index - 1; earlier >= 1; earlier-- {
		def, ok := stage.ByIndex(earlier)
		if !ok {
			continue
		}
		if found, ok := ws.DiscoverOutput(def.OutputPath); ok {
			return found
		}
	}
	return sess.SourceInput
}

func (e *Engine) finishInterrupted(sess *session.Session, ws *workspace.Workspace, logger *slog.Logger, reason string) {
	// Deliberately not the worker context: interruption must be recorded even
	// when that context is already canceled.
	ctx := context.Background()
	if err := e.store.UpdateStatus(ctx, sess.ID, session.StatusInterrupted); err != nil {
		logger.Error("failed to transition session to interrupted", logging.Error(err))
		return
	}
	e.bus.Publish(progress.Event{
		SessionID: sess.ID,
		Kind:      progress.KindSessionInterrupted,
		Status:    string(session.StatusInterrupted),
		Message:   reason,
	})
	logger.Info("session interrupted",
		logging.String(logging.FieldEventType, "session_interrupted"),
		logging.String("reason", reason),
	)
	if err := e.notifier.NotifySessionInterrupted(ctx, ws.DisplayTitle()); err != nil {
		logger.Warn("interruption notification failed", logging.Error(err))
	}
}

func (e *Engine) failSession(sess *session.Session, ws *workspace.Workspace, logger *slog.Logger, st session.StageState, cause error) {
	ctx := context.Background()
	if err := e.store.UpdateStatus(ctx, sess.ID, session.StatusFailed); err != nil {
		logger.Error("failed to transition session to failed", logging.Error(err))
		return
	}
	e.bus.Publish(progress.Event{
		SessionID: sess.ID,
		Kind:      progress.KindSessionFailed,
		Status:    string(session.StatusFailed),
		Message:   cause.Error(),
	})
	if err := e.notifier.NotifySessionFailed(ctx, ws.DisplayTitle(), st.Name, cause); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
}

func percent(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}
