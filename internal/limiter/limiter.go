// Package limiter provides a fixed-capacity task scheduler that bounds the
// number of simultaneously running tasks. Submissions past capacity wait in
// strict first-in-first-out order.
package limiter

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// Limiter bounds in-flight work to a fixed concurrency. A slot is released
// whenever its task finishes, succeeding or failing, so a failing task never
// starves the queue.
//
// Callers must not wrap a full recursive descent in the same Limiter that
// gates the leaf I/O the descent performs: once recursion depth exceeds
// capacity, every slot is held by a caller waiting on children that cannot
// acquire one. Only leaf operations go through the limiter.
type Limiter struct {
	capacity int
	mutex    sync.Mutex
	running  int
	waiters  list.List
}

// New constructs a Limiter with the given concurrency capacity.
func New(capacity int) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{capacity: capacity}
}

// Do runs task once a slot is free, releasing the slot when task returns.
// If waiting is cut short by the context, task never runs and the context
// error is returned.
func (scheduler *Limiter) Do(ctx context.Context, task func() error) error {
	if acquireError := scheduler.acquire(ctx); acquireError != nil {
		return acquireError
	}
	defer scheduler.release()
	return task()
}

// Running reports the number of tasks currently holding a slot.
func (scheduler *Limiter) Running() int {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	return scheduler.running
}

// Capacity reports the configured concurrency bound.
func (scheduler *Limiter) Capacity() int {
	return scheduler.capacity
}

func (scheduler *Limiter) acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	scheduler.mutex.Lock()
	if scheduler.running < scheduler.capacity && scheduler.waiters.Len() == 0 {
		scheduler.running++
		scheduler.mutex.Unlock()
		return nil
	}

	ready := make(chan struct{})
	waiterElement := scheduler.waiters.PushBack(ready)
	scheduler.mutex.Unlock()

	select {
	case <-ctx.Done():
		scheduler.mutex.Lock()
		select {
		case <-ready:
			// The slot was granted between cancellation and lock acquisition;
			// give it up and hand it to the next waiter instead of leaking it.
			scheduler.running--
			scheduler.grantLocked()
		default:
			scheduler.waiters.Remove(waiterElement)
		}
		scheduler.mutex.Unlock()
		return ctx.Err()
	case <-ready:
		return nil
	}
}

func (scheduler *Limiter) release() {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	if scheduler.running == 0 {
		panic(fmt.Sprintf("limiter: release without acquire (capacity %d)", scheduler.capacity))
	}
	scheduler.running--
	scheduler.grantLocked()
}

// grantLocked hands a free slot to the oldest waiter, if any. The caller must
// hold the mutex.
func (scheduler *Limiter) grantLocked() {
	if scheduler.running >= scheduler.capacity {
		return
	}
	oldestWaiter := scheduler.waiters.Front()
	if oldestWaiter == nil {
		return
	}
	scheduler.waiters.Remove(oldestWaiter)
	scheduler.running++
	close(oldestWaiter.Value.(chan struct{}))
}
