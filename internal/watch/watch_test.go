package watch_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/temirov/promptmap/internal/watch"
)

func TestRunnerCoalescesBursts(testHandle *testing.T) {
	var runCount atomic.Int64
	runner := watch.NewRunner(30*time.Millisecond, func(ctx context.Context, sequence uint64) {
		runCount.Add(1)
	})

	runnerContext, cancel := context.WithCancel(context.Background())
	runnerDone := make(chan error, 1)
	go func() { runnerDone <- runner.Run(runnerContext) }()

	for notificationIndex := 0; notificationIndex < 5; notificationIndex++ {
		runner.Notify()
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	cancel()
	<-runnerDone

	if count := runCount.Load(); count != 1 {
		testHandle.Fatalf("expected one coalesced run, got %d", count)
	}
}

func TestRunnerCancelsSupersededRun(testHandle *testing.T) {
	firstStarted := make(chan struct{})
	firstCancelled := make(chan struct{})

	runner := watch.NewRunner(10*time.Millisecond, func(ctx context.Context, sequence uint64) {
		if sequence != 1 {
			return
		}
		close(firstStarted)
		<-ctx.Done()
		close(firstCancelled)
	})

	runnerContext, cancel := context.WithCancel(context.Background())
	runnerDone := make(chan error, 1)
	go func() { runnerDone <- runner.Run(runnerContext) }()

	runner.Notify()
	select {
	case <-firstStarted:
	case <-time.After(time.Second):
		testHandle.Fatalf("first run never started")
	}

	runner.Notify()
	select {
	case <-firstCancelled:
	case <-time.After(time.Second):
		testHandle.Fatalf("superseded run was not cancelled")
	}

	cancel()
	<-runnerDone
}

func TestRunnerSequenceNumbersIncrease(testHandle *testing.T) {
	sequences := make(chan uint64, 4)
	runner := watch.NewRunner(10*time.Millisecond, func(ctx context.Context, sequence uint64) {
		sequences <- sequence
	})

	runnerContext, cancel := context.WithCancel(context.Background())
	runnerDone := make(chan error, 1)
	go func() { runnerDone <- runner.Run(runnerContext) }()

	runner.Notify()
	firstSequence := waitForSequence(testHandle, sequences)
	runner.Notify()
	secondSequence := waitForSequence(testHandle, sequences)

	cancel()
	<-runnerDone

	if firstSequence != 1 || secondSequence != 2 {
		testHandle.Fatalf("expected sequences 1 and 2, got %d and %d", firstSequence, secondSequence)
	}
}

func waitForSequence(testHandle *testing.T, sequences <-chan uint64) uint64 {
	testHandle.Helper()
	select {
	case sequence := <-sequences:
		return sequence
	case <-time.After(time.Second):
		testHandle.Fatalf("timed out waiting for a run")
		return 0
	}
}

func TestNotifyNeverBlocks(testHandle *testing.T) {
	runner := watch.NewRunner(time.Millisecond, func(ctx context.Context, sequence uint64) {})
	done := make(chan struct{})
	go func() {
		for notificationIndex := 0; notificationIndex < 1000; notificationIndex++ {
			runner.Notify()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		testHandle.Fatalf("Notify blocked without a running loop")
	}
}
