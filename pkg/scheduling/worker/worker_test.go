package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vnykmshr/dueflow/internal/testutil"
	dferrors "github.com/vnykmshr/dueflow/pkg/common/errors"
	"github.com/vnykmshr/dueflow/pkg/work"
)

// chanSource serves work from a channel; closing the channel releases it.
type chanSource struct {
	items chan work.Work

	mu       sync.Mutex
	returned []string
}

func newChanSource() *chanSource {
	return &chanSource{items: make(chan work.Work, 16)}
}

func (s *chanSource) TryTake(ctx context.Context) (work.Work, bool) {
	select {
	case w, ok := <-s.items:
		return w, ok
	case <-ctx.Done():
		return nil, false
	}
}

func (s *chanSource) Return(w work.Work) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.returned = append(s.returned, w.Name())
}

func (s *chanSource) Returned() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.returned...)
}

// testWork runs start and stop hooks supplied by the test.
type testWork struct {
	name  string
	start func(ctx context.Context) error
	stop  func() error
}

func (w *testWork) DueAt() time.Time { return time.Time{} }
func (w *testWork) Name() string { return w.name }

func (w *testWork) Start(ctx context.Context) error {
	if w.start == nil {
		return nil
	}
	return w.start(ctx)
}

func (w *testWork) Stop() error {
	if w.stop == nil {
		return nil
	}
	return w.stop()
}

func startWorker(t *testing.T, cfg Config) (*Worker, *chanSource) {
	t.Helper()
	src := newChanSource()
	w := New("test-0", cfg)
	testutil.AssertNoError(t, w.Start(src))
	t.Cleanup(func() {
		_ = w.Stop()
		<-w.Done()
	})
	return w, src
}

func TestStart_Errors(t *testing.T) {
	t.Run("nil source", func(t *testing.T) {
		w := New("w", Config{})
		if err := w.Start(nil); !dferrors.IsValidationError(err) {
			t.Errorf("Start(nil) = %v, want ValidationError", err)
		}
	})

	t.Run("already bound", func(t *testing.T) {
		core, logs := observer.New(zap.ErrorLevel)
		w, _ := startWorker(t, Config{Logger: zap.New(core)})

		err := w.Start(newChanSource())
		if !errors.Is(err, dferrors.ErrAlreadyStarted) {
			t.Fatalf("second Start() = %v, want ErrAlreadyStarted", err)
		}
		testutil.AssertEqual(t, logs.FilterMessage("worker is already bound to a source").Len(), 1)
	})

	t.Run("stopped", func(t *testing.T) {
		w := New("w", Config{})
		testutil.AssertNoError(t, w.Stop())
		if err := w.Start(newChanSource()); !errors.Is(err, dferrors.ErrClosed) {
			t.Errorf("Start after Stop = %v, want ErrClosed", err)
		}
	})
}

func TestRun_ExecutesAndReturns(t *testing.T) {
	starts := testutil.NewCallbackTracker()
	completes := testutil.NewCallbackTracker()
	w, src := startWorker(t, Config{
		OnStart: func(worker string, item work.Work) { starts.Mark(worker, item.Name()) },
		OnComplete: func(worker string, item work.Work, d time.Duration, err error) {
			completes.Mark(err)
		},
	})

	src.items <- &testWork{name: "a"}
	src.items <- &testWork{name: "b"}

	testutil.Eventually(t, func() bool { return len(src.Returned()) == 2 }, time.Second, time.Millisecond)
	got := src.Returned()
	testutil.AssertEqual(t, got[0], "a")
	testutil.AssertEqual(t, got[1], "b")

	starts.AssertCallCount(t, 2)
	completes.AssertCallCount(t, 2)
	if err, _ := completes.Value().(error); err != nil {
		t.Errorf("OnComplete error = %v, want nil", err)
	}
	testutil.AssertEqual(t, w.Busy(), false)
}

func TestRun_SwallowsFailures(t *testing.T) {
	cause := errors.New("disk full")

	var mu sync.Mutex
	failures := map[string]error{}
	core, logs := observer.New(zap.ErrorLevel)
	_, src := startWorker(t, Config{
		Logger: zap.New(core),
		OnComplete: func(_ string, item work.Work, _ time.Duration, err error) {
			mu.Lock()
			defer mu.Unlock()
			failures[item.Name()] = err
		},
	})

	src.items <- &testWork{name: "errors", start: func(context.Context) error { return cause }}
	src.items <- &testWork{name: "panics", start: func(context.Context) error { panic("nil map") }}
	src.items <- &testWork{name: "fine"}

	testutil.Eventually(t, func() bool { return len(src.Returned()) == 3 }, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	var opErr *dferrors.OperationError
	if !errors.As(failures["errors"], &opErr) || !errors.Is(failures["errors"], cause) {
		t.Errorf("error item reported %v", failures["errors"])
	}
	if !errors.As(failures["panics"], &opErr) {
		t.Errorf("panicking item reported %v", failures["panics"])
	}
	if failures["fine"] != nil {
		t.Errorf("healthy item reported %v", failures["fine"])
	}
	testutil.AssertEqual(t, logs.FilterMessage("work failed").Len(), 2)
}

func TestStop_CancelsAndStopsCurrent(t *testing.T) {
	w, src := startWorker(t, Config{})

	stopped := testutil.NewCallbackTracker()
	running := make(chan struct{})
	src.items <- &testWork{
		name: "blocking",
		start: func(ctx context.Context) error {
			close(running)
			<-ctx.Done()
			return ctx.Err()
		},
		stop: func() error {
			stopped.Mark()
			return nil
		},
	}

	<-running
	testutil.AssertEqual(t, w.Busy(), true)
	testutil.AssertNoError(t, w.Stop())
	stopped.AssertCalled(t)

	testutil.WaitClosed(t, w.Done(), time.Second)
	testutil.AssertEqual(t, src.Returned()[0], "blocking")
}

func TestStop_ReportsItemStopFailure(t *testing.T) {
	cause := errors.New("cannot interrupt")

	tests := []struct {
		name  string
		stop  func() error
		check func(t *testing.T, err error)
	}{
		{
			name: "error",
			stop: func() error { return cause },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, cause) {
					t.Errorf("Stop() = %v, want %v", err, cause)
				}
			},
		},
		{
			name: "panic",
			stop: func() error { panic("double stop") },
			check: func(t *testing.T, err error) {
				var opErr *dferrors.OperationError
				if !errors.As(err, &opErr) || opErr.Operation != "Stop" {
					t.Errorf("Stop() = %v, want OperationError", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, src := startWorker(t, Config{})
			running := make(chan struct{})
			src.items <- &testWork{
				name: "stubborn",
				start: func(ctx context.Context) error {
					close(running)
					<-ctx.Done()
					return nil
				},
				stop: tt.stop,
			}

			<-running
			tt.check(t, w.Stop())
			testutil.AssertNoError(t, w.Stop())
		})
	}
}

func TestStop_ReachesItemBeforeItIsReturned(t *testing.T) {
	w, src := startWorker(t, Config{})

	running := make(chan struct{})
	var returnedDuringStop int
	src.items <- &testWork{
		name: "quick",
		start: func(ctx context.Context) error {
			close(running)
			<-ctx.Done()
			return nil
		},
		stop: func() error {
			// Give the worker goroutine every chance to hand the item back.
			time.Sleep(20 * time.Millisecond)
			returnedDuringStop = len(src.Returned())
			return nil
		},
	}

	<-running
	testutil.AssertNoError(t, w.Stop())
	testutil.AssertEqual(t, returnedDuringStop, 0)

	testutil.WaitClosed(t, w.Done(), time.Second)
	testutil.AssertEqual(t, len(src.Returned()), 1)
}

func TestRun_SurvivesPanickingHooks(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	completes := testutil.NewCallbackTracker()
	w, src := startWorker(t, Config{
		Logger: zap.New(core),
		OnStart: func(_ string, item work.Work) {
			if item.Name() == "a" {
				panic("metrics backend gone")
			}
		},
		OnComplete: func(_ string, item work.Work, _ time.Duration, _ error) {
			completes.Mark(item.Name())
			if item.Name() == "b" {
				panic("metrics backend gone")
			}
		},
	})

	src.items <- &testWork{name: "a"}
	src.items <- &testWork{name: "b"}
	src.items <- &testWork{name: "c"}

	testutil.Eventually(t, func() bool { return len(src.Returned()) == 3 }, time.Second, time.Millisecond)
	completes.AssertCallCount(t, 3)
	testutil.AssertEqual(t, completes.Value(), "c")
	testutil.AssertEqual(t, logs.FilterMessage("hook panicked").Len(), 2)

	select {
	case <-w.Done():
		t.Fatal("worker exited after a hook panicked")
	default:
	}
}

func TestStop_DoesNotWait(t *testing.T) {
	w, src := startWorker(t, Config{})

	release := make(chan struct{})
	running := make(chan struct{})
	src.items <- &testWork{
		name: "ignores-cancel",
		start: func(context.Context) error {
			close(running)
			<-release
			return nil
		},
	}
	<-running

	start := time.Now()
	testutil.AssertNoError(t, w.Stop())
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Stop blocked for %v", elapsed)
	}

	select {
	case <-w.Done():
		t.Fatal("worker exited while its item was still running")
	default:
	}

	close(release)
	testutil.WaitClosed(t, w.Done(), time.Second)
}

func TestStop_BeforeStart(t *testing.T) {
	w := New("idle", Config{})
	testutil.AssertNoError(t, w.Stop())
	testutil.AssertNoError(t, w.Stop())
	testutil.WaitClosed(t, w.Done(), time.Second)
}

func TestRun_ExitsWhenSourceReleased(t *testing.T) {
	starts := testutil.NewCallbackTracker()
	w, src := startWorker(t, Config{
		OnStart: func(string, work.Work) { starts.Mark() },
	})
	close(src.items)
	testutil.WaitClosed(t, w.Done(), time.Second)
	starts.AssertNotCalled(t)
	testutil.AssertEqual(t, w.Name(), "test-0")
}
