package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gitddb/gitddb/internal/dberr"
	"github.com/gitddb/gitddb/internal/types"
)

func TestEnqueueRunsInFIFOOrder(t *testing.T) {
	q := New(nil)
	defer q.Shutdown(true)

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		f := Enqueue(q, types.TaskPut, "put", "", func(ctx context.Context) (int, error) {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
			return i, nil
		})
		_ = f
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks to run")
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want strictly increasing from 0", order)
		}
	}
}

func TestFutureWaitReturnsResult(t *testing.T) {
	q := New(nil)
	defer q.Shutdown(true)

	f := Enqueue(q, types.TaskPut, "put", "x", func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	got, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got != "ok" {
		t.Fatalf("got %q, want ok", got)
	}
	if q.Stats().Put != 1 {
		t.Fatalf("expected Put stat = 1, got %+v", q.Stats())
	}
}

func TestFailedTaskDoesNotPoisonQueue(t *testing.T) {
	q := New(nil)
	defer q.Shutdown(true)

	boom := errors.New("boom")
	f1 := Enqueue(q, types.TaskPut, "put", "", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if _, err := f1.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom error, got %v", err)
	}

	f2 := Enqueue(q, types.TaskPut, "put", "", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	got, err := f2.Wait(context.Background())
	if err != nil || got != 42 {
		t.Fatalf("expected second task to still run: got=%d err=%v", got, err)
	}
}

func TestCancelPendingTaskRejectsWithTaskCancel(t *testing.T) {
	q := New(nil)
	defer q.Shutdown(true)

	block := make(chan struct{})
	blocker := Enqueue(q, types.TaskPut, "blocker", "", func(ctx context.Context) (int, error) {
		<-block
		return 0, nil
	})
	_ = blocker

	f := Enqueue(q, types.TaskPut, "put", "", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	if !f.Cancel() {
		t.Fatal("expected Cancel on a not-yet-started task to succeed")
	}
	close(block)

	_, err := f.Wait(context.Background())
	if !errors.Is(err, dberr.New(dberr.TaskCancel)) {
		t.Fatalf("expected TaskCancel, got %v", err)
	}
	if q.Stats().Cancel != 1 {
		t.Fatalf("expected Cancel stat = 1, got %+v", q.Stats())
	}
}

func TestWaitCompletionReturnsFalseWhenDrained(t *testing.T) {
	q := New(nil)
	defer q.Shutdown(true)

	f := Enqueue(q, types.TaskPut, "put", "", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	f.Wait(context.Background())

	if timedOut := q.WaitCompletion(time.Second); timedOut {
		t.Fatal("expected WaitCompletion to report drained (false)")
	}
}

func TestWaitCompletionReturnsTrueOnTimeout(t *testing.T) {
	q := New(nil)
	defer q.Shutdown(true)

	block := make(chan struct{})
	defer close(block)
	Enqueue(q, types.TaskPut, "put", "", func(ctx context.Context) (int, error) {
		<-block
		return 0, nil
	})

	if timedOut := q.WaitCompletion(50 * time.Millisecond); !timedOut {
		t.Fatal("expected WaitCompletion to time out while task is blocked")
	}
}

func TestEnqueueAfterStopAcceptingRejects(t *testing.T) {
	q := New(nil)
	q.StopAccepting()
	defer q.Shutdown(true)

	f := Enqueue(q, types.TaskPut, "put", "", func(ctx context.Context) (int, error) {
		return 1, nil
	})
	_, err := f.Wait(context.Background())
	if !errors.Is(err, dberr.New(dberr.DatabaseClosing)) {
		t.Fatalf("expected DatabaseClosing, got %v", err)
	}
}
