package task

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scan-hub/scan-hub/internal/apperr"
	"github.com/scan-hub/scan-hub/internal/domain/dispatch"
	"github.com/scan-hub/scan-hub/internal/domain/executor"
	"github.com/scan-hub/scan-hub/internal/domain/task"
	"github.com/scan-hub/scan-hub/internal/infrastructure/sse"
)

// HandleReport applies a message received from a connected executor.
// Executors may only report on tasks dispatched to them.
func (s *Service) HandleReport(ctx context.Context, from executor.Identity, kind dispatch.Kind, payload interface{}) error {
	switch msg := payload.(type) {
	case *dispatch.StatusReport:
		if !executor.ValidStatus(msg.Status) {
			return apperr.Validation("invalid executor status: %s", msg.Status)
		}
		return s.executors.UpdateStatus(ctx, from.TenantID, from.ExecutorID, msg.Status)

	case *dispatch.LogReport:
		t, err := s.ownedTask(ctx, from, msg.TaskID)
		if err != nil {
			return err
		}
		for _, line := range msg.Lines {
			entry := &task.LogEntry{TenantID: t.TenantID, TaskID: t.TaskID, Line: line, CreatedAt: time.Now().UTC()}
			if err := s.logRepo.Append(ctx, entry); err != nil {
				return err
			}
			s.publish(t.TenantID, t.TaskID, sse.EventTaskLog, entry)
		}
		return nil

	case *dispatch.StageReport:
		t, err := s.ownedTask(ctx, from, msg.Summary.TaskID)
		if err != nil {
			return err
		}
		if t.IsTerminal() {
			return apperr.Validation("task %s is already %s", t.TaskID, t.Status)
		}
		if t.Status == task.StatusDispatched {
			if err := t.Start(); err != nil {
				return err
			}
			if err := s.taskRepo.Update(ctx, t); err != nil {
				return err
			}
			s.publishStatus(t)
		}
		summary := msg.Summary
		if summary.StageID == uuid.Nil {
			summary.StageID = uuid.New()
		}
		return s.saveStage(ctx, t.TenantID, &summary)

	case *dispatch.TaskReport:
		t, err := s.ownedTask(ctx, from, msg.TaskID)
		if err != nil {
			return err
		}
		if t.IsTerminal() {
			return apperr.Validation("task %s is already %s", t.TaskID, t.Status)
		}
		var cause error
		if !msg.Succeeded {
			reason := msg.Error
			if reason == "" {
				reason = "executor reported failure"
			}
			cause = apperr.Validation("%s", reason)
		}
		return s.finish(ctx, t, cause)

	default:
		return apperr.Validation("unexpected %s message from executor", kind)
	}
}

func (s *Service) ownedTask(ctx context.Context, from executor.Identity, taskID uuid.UUID) (*task.Task, error) {
	t, err := s.Get(ctx, from.TenantID, taskID)
	if err != nil {
		return nil, err
	}
	if t.ExecutorID == nil || *t.ExecutorID != from.ExecutorID {
		return nil, apperr.Validation("task %s is not assigned to executor %s", taskID, from.ExecutorID)
	}
	return t, nil
}
