package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"syscall"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestGroup_StopRunsHooksInReverse(t *testing.T) {
	g, _ := NewGroup(context.Background(), discardLogger(), time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) ShutdownFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	g.Go("manager", blockUntilDone)
	g.Go("daemon", blockUntilDone)
	g.OnShutdown("store", record("store"))
	g.OnShutdown("router", record("router"))

	g.Stop()
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait() = %v, want nil", err)
	}
	if want := []string{"router", "store"}; !slices.Equal(order, want) {
		t.Errorf("hook order = %v, want %v", order, want)
	}
}

func TestGroup_FailureCancelsOthers(t *testing.T) {
	g, _ := NewGroup(context.Background(), discardLogger(), time.Second)

	boom := errors.New("boom")
	g.Go("watcher", func(context.Context) error { return boom })
	g.Go("daemon", blockUntilDone)

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("Wait() = %v, want boom", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("failure did not stop the group")
	}
}

func TestGroup_HookErrorsJoined(t *testing.T) {
	g, _ := NewGroup(context.Background(), discardLogger(), time.Second)

	closeErr := errors.New("close failed")
	g.OnShutdown("store", ShutdownFunc(func(context.Context) error { return closeErr }))

	g.Stop()
	if err := g.Wait(); !errors.Is(err, closeErr) {
		t.Errorf("Wait() = %v, want close failure", err)
	}
}

func TestGroup_HookSeesTimeout(t *testing.T) {
	g, _ := NewGroup(context.Background(), discardLogger(), 20*time.Millisecond)

	g.OnShutdown("slow", ShutdownFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	g.Stop()
	if err := g.Wait(); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want deadline exceeded", err)
	}
}

func TestGroup_SignalCancels(t *testing.T) {
	g, ctx := newGroup(context.Background(), discardLogger(), time.Second, syscall.SIGUSR1)
	g.Go("daemon", blockUntilDone)

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("signal did not cancel the group context")
	}
	if err := g.Wait(); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
}

func TestGroup_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	g, _ := NewGroup(parent, discardLogger(), time.Second)
	g.Go("daemon", blockUntilDone)

	cancel()
	if err := g.Wait(); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
}
