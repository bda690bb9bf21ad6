package queue

import (
	"errors"
	"testing"

	"autoapply/internal/core/jobs"
)

func newTask(attempts, max int) *Task {
	return &Task{
		ID:          "t1",
		Platform:    jobs.PlatformLinkedIn,
		Operation:   OpSearch,
		Status:      StatusProcessing,
		Attempts:    attempts,
		MaxAttempts: max,
	}
}

func TestAdvanceCompletesOnSuccess(t *testing.T) {
	task := newTask(1, 3)
	task.Error = "previous attempt noise"

	retry := advance(task, []jobs.ScrapedJob{{ID: "j1"}}, nil)

	if retry {
		t.Error("successful execution must not request redelivery")
	}
	if task.Status != StatusCompleted {
		t.Errorf("status = %q, want completed", task.Status)
	}
	if task.Error != "" {
		t.Errorf("error not cleared on success: %q", task.Error)
	}
	if len(task.Result) == 0 {
		t.Error("result not recorded")
	}
}

func TestAdvanceRetriesBelowMaxAttempts(t *testing.T) {
	task := newTask(1, 3)

	retry := advance(task, nil, errors.New("timeout"))

	if !retry {
		t.Error("failure below max attempts should request redelivery")
	}
	if task.Status != StatusPending {
		t.Errorf("status = %q, want pending for retry", task.Status)
	}
	if task.Error != "timeout" {
		t.Errorf("error = %q", task.Error)
	}
}

func TestAdvanceFailsPermanentlyAtMaxAttempts(t *testing.T) {
	task := newTask(3, 3)

	retry := advance(task, nil, errors.New("still broken"))

	if retry {
		t.Error("exhausted task must not be redelivered")
	}
	if task.Status != StatusFailed {
		t.Errorf("status = %q, want failed", task.Status)
	}
	if task.Error != "still broken" {
		t.Errorf("last error not kept: %q", task.Error)
	}
}

func TestAdvanceNeverExceedsMaxAttempts(t *testing.T) {
	task := newTask(0, 3)
	for i := 0; i < 3; i++ {
		task.Attempts++
		retry := advance(task, nil, errors.New("boom"))
		if i < 2 && !retry {
			t.Fatalf("attempt %d should retry", task.Attempts)
		}
		if i == 2 && retry {
			t.Fatal("third attempt must be the last")
		}
	}
	if task.Attempts != task.MaxAttempts {
		t.Errorf("attempts = %d, want exactly %d", task.Attempts, task.MaxAttempts)
	}
	if task.Status != StatusFailed {
		t.Errorf("status = %q, want failed", task.Status)
	}
}

func TestAdvanceSucceedsOnFinalAttempt(t *testing.T) {
	task := newTask(3, 3)

	if retry := advance(task, "ok", nil); retry {
		t.Error("no retry expected")
	}
	if task.Status != StatusCompleted {
		t.Errorf("status = %q, want completed even on the last attempt", task.Status)
	}
}
