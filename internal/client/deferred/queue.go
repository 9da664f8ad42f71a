// Package deferred hands work from network goroutines to the single
// presentation goroutine.
package deferred

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"grovecraft.io/internal/logging"
)

const DefaultWarnThreshold = 100

type node struct {
	next atomic.Pointer[node]
	fn   func()
}

// Queue is an intrusive multi-producer single-consumer queue (Vyukov).
// Enqueue never blocks and never drops; RunPending must only be called from
// one goroutine.
type Queue struct {
	head atomic.Pointer[node] // last pushed; producers swap it
	tail *node                // consumer only
	stub node

	size      atomic.Int64
	threshold int64
	warned    atomic.Bool
	failures  atomic.Uint64
	executed  atomic.Uint64

	log logrus.FieldLogger
}

func New(warnThreshold int, log logrus.FieldLogger) *Queue {
	if warnThreshold <= 0 {
		warnThreshold = DefaultWarnThreshold
	}
	q := &Queue{threshold: int64(warnThreshold), log: logging.OrDiscard(log)}
	q.head.Store(&q.stub)
	q.tail = &q.stub
	return q
}

func (q *Queue) push(n *node) {
	n.next.Store(nil)
	prev := q.head.Swap(n)
	prev.next.Store(n)
}

// Enqueue schedules fn for the next RunPending. Safe from any goroutine.
func (q *Queue) Enqueue(fn func()) {
	if fn == nil {
		return
	}
	q.push(&node{fn: fn})
	n := q.size.Add(1)
	if n > q.threshold && q.warned.CompareAndSwap(false, true) {
		q.log.WithField("pending", n).WithField("threshold", q.threshold).
			Warn("deferred queue backlog; presentation loop may be stalled")
	}
}

// pop returns the oldest node, or nil when the queue is empty or the oldest
// producer has not finished linking its node yet.
func (q *Queue) pop() *node {
	tail := q.tail
	next := tail.next.Load()
	if tail == &q.stub {
		if next == nil {
			return nil
		}
		q.tail = next
		tail = next
		next = next.next.Load()
	}
	if next != nil {
		q.tail = next
		return tail
	}
	if tail != q.head.Load() {
		return nil
	}
	q.push(&q.stub)
	next = tail.next.Load()
	if next != nil {
		q.tail = next
		return tail
	}
	return nil
}

// RunPending executes queued operations in FIFO order. Operations enqueued
// while it runs wait for the next call. A panicking operation is logged and
// does not stop the ones after it. It returns the number executed.
func (q *Queue) RunPending() int {
	limit := q.size.Load()
	ran := 0
	for int64(ran) < limit {
		n := q.pop()
		if n == nil {
			break
		}
		q.size.Add(-1)
		fn := n.fn
		n.fn = nil
		q.runSafe(fn)
		ran++
	}
	if q.size.Load() <= q.threshold {
		q.warned.Store(false)
	}
	return ran
}

func (q *Queue) runSafe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.failures.Add(1)
			q.log.WithField("panic", fmt.Sprint(r)).Error("deferred operation failed")
		}
	}()
	fn()
	q.executed.Add(1)
}

func (q *Queue) Len() int { return int(q.size.Load()) }

type Stats struct {
	Pending  int
	Executed uint64
	Failures uint64
}

func (q *Queue) Stats() Stats {
	return Stats{Pending: q.Len(), Executed: q.executed.Load(), Failures: q.failures.Load()}
}
