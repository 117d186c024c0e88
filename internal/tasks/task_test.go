// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
)

func TestNewTask(t *testing.T) {
	task := NewTask(context.Background(), "conv-1", KindSend)

	if task.ID == "" {
		t.Error("Task ID should not be empty")
	}
	if task.ConversationID != "conv-1" {
		t.Errorf("Expected conversation 'conv-1', got '%s'", task.ConversationID)
	}
	if task.GetStatus() != TaskStatusRunning {
		t.Errorf("Expected status Running, got %s", task.GetStatus())
	}
	if task.Token() == nil || task.Token().Stopped() {
		t.Error("New task should have an unstopped token")
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	task := NewTask(context.Background(), "c", KindSend)

	if err := task.SetStatus(TaskStatusComplete); err != nil {
		t.Fatalf("Running -> Complete should be valid: %v", err)
	}
	if err := task.SetStatus(TaskStatusComplete); err != nil {
		t.Errorf("Setting the same status should be idempotent: %v", err)
	}
	if err := task.SetStatus(TaskStatusRunning); err == nil {
		t.Error("Complete -> Running should be rejected")
	}
	if err := task.SetStatus(TaskStatusFailed); err == nil {
		t.Error("Complete -> Failed should be rejected")
	}
	if task.Duration() < 0 {
		t.Error("Task duration should not be negative")
	}
}

func TestTaskStop(t *testing.T) {
	task := NewTask(context.Background(), "c", KindSend)

	if !task.Stop() {
		t.Error("Stop should succeed on a running task")
	}
	if !task.Token().Stopped() {
		t.Error("Token should be stopped")
	}
	if task.Token().Context().Err() == nil {
		t.Error("Token context should be canceled")
	}

	_ = task.SetStatus(TaskStatusStopped)
	if task.Stop() {
		t.Error("Stop should fail on a finished task")
	}
}

func TestTaskSetError(t *testing.T) {
	task := NewTask(context.Background(), "c", KindEdit)
	task.SetError(errors.New("upstream down"))

	if task.GetStatus() != TaskStatusFailed {
		t.Errorf("Expected Failed, got %s", task.GetStatus())
	}
	if task.GetError() != "upstream down" {
		t.Errorf("Unexpected error text %q", task.GetError())
	}
	if !strings.Contains(task.Summary(), "upstream down") {
		t.Errorf("Summary should include the error: %s", task.Summary())
	}
}

func TestRegistryBusy(t *testing.T) {
	r := NewRegistry(10)

	task, err := r.Start(context.Background(), "conv", KindSend)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := r.Start(context.Background(), "conv", KindRegenerate); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if _, err := r.Start(context.Background(), "other", KindSend); err != nil {
		t.Errorf("Other conversations should not be blocked: %v", err)
	}
	if !r.IsBusy("conv") || r.RunningCount() != 2 {
		t.Error("Expected two running tasks")
	}

	r.Finish(task, false, nil)
	if r.IsBusy("conv") {
		t.Error("Conversation should be free after Finish")
	}
	if _, err := r.Start(context.Background(), "conv", KindSend); err != nil {
		t.Errorf("Start after Finish failed: %v", err)
	}
}

func TestRegistryStop(t *testing.T) {
	r := NewRegistry(10)

	if r.Stop("missing") {
		t.Error("Stop on an idle conversation should return false")
	}

	task, _ := r.Start(context.Background(), "conv", KindSend)
	if !r.Stop("conv") {
		t.Error("Stop should signal the running task")
	}
	if !task.Token().Stopped() {
		t.Error("Running task token should be stopped")
	}

	var got []TaskNotification
	r.OnFinish(func(n TaskNotification) { got = append(got, n) })

	r.Finish(task, true, nil)
	if task.GetStatus() != TaskStatusStopped {
		t.Errorf("Expected Stopped, got %s", task.GetStatus())
	}
	if len(got) != 1 || got[0].Status != TaskStatusStopped || got[0].ConversationID != "conv" {
		t.Errorf("Unexpected notifications %+v", got)
	}
}

func TestRegistryOnFinish_LongRunning(t *testing.T) {
	var logs bytes.Buffer
	log.SetOutput(&logs)
	defer log.SetOutput(os.Stderr)

	r := NewRegistry(0)
	counts := map[TaskStatus]int{}
	r.OnFinish(func(n TaskNotification) { counts[n.Status]++ })

	const forwards = 250
	for i := 0; i < forwards; i++ {
		task, err := r.Start(context.Background(), "conv", KindSend)
		if err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
		r.Finish(task, i%2 == 1, nil)
	}

	if counts[TaskStatusComplete]+counts[TaskStatusStopped] != forwards {
		t.Errorf("Expected %d notifications, got %v", forwards, counts)
	}
	if strings.Contains(logs.String(), "WARNING") || strings.Contains(logs.String(), "dropped") {
		t.Errorf("Finish should never warn, log was:\n%s", logs.String())
	}
	if n := strings.Count(logs.String(), "TASK_FINISHED"); n != forwards {
		t.Errorf("Expected %d TASK_FINISHED lines, got %d", forwards, n)
	}
	if got := len(r.History()); got != DefaultMaxHistory {
		t.Errorf("Expected history capped at %d, got %d", DefaultMaxHistory, got)
	}
}

func TestRegistryHistoryLimit(t *testing.T) {
	r := NewRegistry(2)

	for i := 0; i < 5; i++ {
		task, err := r.Start(context.Background(), "conv", KindSend)
		if err != nil {
			t.Fatalf("Start %d failed: %v", i, err)
		}
		r.Finish(task, false, nil)
	}

	if got := len(r.History()); got != 2 {
		t.Errorf("Expected history of 2, got %d", got)
	}
	for _, task := range r.History() {
		if task.GetStatus() != TaskStatusComplete {
			t.Errorf("Expected Complete, got %s", task.GetStatus())
		}
	}
}

func TestRegistryStopAll(t *testing.T) {
	r := NewRegistry(0)
	a, _ := r.Start(context.Background(), "a", KindSend)
	b, _ := r.Start(context.Background(), "b", KindSend)

	if n := r.StopAll(); n != 2 {
		t.Errorf("Expected 2 stopped, got %d", n)
	}
	if !a.Token().Stopped() || !b.Token().Stopped() {
		t.Error("All tokens should be stopped")
	}
}

func TestRegistryConcurrentStart(t *testing.T) {
	r := NewRegistry(0)

	var wg sync.WaitGroup
	var mu sync.Mutex
	started := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Start(context.Background(), "same", KindSend); err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if started != 1 {
		t.Errorf("Expected exactly one task to start, got %d", started)
	}
}
