// Package queue is the task layer for one-off scrape operations: enqueue,
// execute with bounded retries, and expose status. asynq supplies the
// delivery and exponential backoff; the task record in Redis is the source
// of truth for attempt accounting.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"autoapply/internal/core/jobs"
	"autoapply/internal/logger"
	rds "autoapply/internal/platform/redis"
	"autoapply/internal/platform/tasks"
)

// Executor runs one task's operation against a platform session.
type Executor interface {
	Execute(ctx context.Context, task *Task) (interface{}, error)
}

type Service struct {
	redis       *rds.Service
	tasks       *tasks.Client
	exec        Executor
	maxAttempts int
	log         *logger.Logger
}

func New(redis *rds.Service, tasksClient *tasks.Client, exec Executor, maxAttempts int) *Service {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Service{
		redis:       redis,
		tasks:       tasksClient,
		exec:        exec,
		maxAttempts: maxAttempts,
		log:         logger.New("TaskQueue"),
	}
}

func key(id string) string { return "scrape:task:" + id }

func ttl(s Status) int {
	if s == StatusCompleted || s == StatusFailed {
		return 3600
	}
	return 600
}

func (s *Service) save(ctx context.Context, task *Task) error {
	task.UpdatedAt = time.Now()
	return s.redis.CacheSet(ctx, key(task.ID), task, ttl(task.Status))
}

// Enqueue registers a pending task record and hands delivery to asynq.
func (s *Service) Enqueue(ctx context.Context, platform jobs.Platform, op Operation, params TaskParams) (*Task, error) {
	task := &Task{
		ID:          uuid.New().String(),
		Platform:    platform,
		Operation:   op,
		Params:      params,
		Status:      StatusPending,
		MaxAttempts: s.maxAttempts,
		CreatedAt:   time.Now(),
	}
	if err := s.save(ctx, task); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	payload, err := json.Marshal(taskPayload{TaskID: task.ID})
	if err != nil {
		return nil, err
	}
	// asynq retries maxAttempts-1 times after the first delivery.
	if err := s.tasks.Enqueue(asynq.NewTask(tasks.TaskTypeScrape, payload), "default", s.maxAttempts-1); err != nil {
		return nil, fmt.Errorf("enqueue task: %w", err)
	}
	s.log.LogInfof("enqueued %s %s task %s", platform, op, task.ID)
	return task, nil
}

// Status returns the current task record.
func (s *Service) Status(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := s.redis.CacheGet(ctx, key(taskID), &task); err != nil {
		return nil, fmt.Errorf("task not found: %s", taskID)
	}
	return &task, nil
}

// HandleScrapeTask is the asynq worker entry point. Returning an error
// asks asynq to redeliver with backoff; exhausted tasks are marked failed
// and the error swallowed so asynq does not keep them alive.
func (s *Service) HandleScrapeTask(ctx context.Context, t *asynq.Task) error {
	var payload taskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		s.log.LogError("undecodable task payload", err)
		return nil
	}
	task, err := s.Status(ctx, payload.TaskID)
	if err != nil {
		s.log.LogWarnf("task record %s is gone, dropping", payload.TaskID)
		return nil
	}

	task.Attempts++
	task.Status = StatusProcessing
	if err := s.save(ctx, task); err != nil {
		return err
	}

	result, execErr := s.exec.Execute(ctx, task)
	retry := advance(task, result, execErr)
	if err := s.save(ctx, task); err != nil {
		return err
	}

	switch task.Status {
	case StatusCompleted:
		s.log.LogInfof("task %s completed on attempt %d", task.ID, task.Attempts)
	case StatusFailed:
		s.log.LogWarnf("task %s failed permanently after %d attempts: %v", task.ID, task.Attempts, execErr)
	default:
		s.log.LogWarnf("task %s attempt %d/%d failed, retrying: %v", task.ID, task.Attempts, task.MaxAttempts, execErr)
	}
	if retry {
		return execErr
	}
	return nil
}

// advance applies one execution outcome to the task record and reports
// whether the task should be redelivered. Success clears any earlier
// error; a failure on the last allowed attempt keeps it.
func advance(task *Task, result interface{}, execErr error) (retry bool) {
	if execErr == nil {
		if raw, err := json.Marshal(result); err == nil {
			task.Result = raw
		}
		task.Status = StatusCompleted
		task.Error = ""
		return false
	}

	task.Error = execErr.Error()
	if task.Attempts >= task.MaxAttempts {
		task.Status = StatusFailed
		return false
	}
	task.Status = StatusPending
	return true
}
