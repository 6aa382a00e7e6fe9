package crawler

import (
	"sync"
	"sync/atomic"

	"github.com/nao1215/odindexer/internal/tree"
)

// workQueue is a FIFO of folder IDs with an in-flight counter.
// An ID is never queued twice at the same time.
type workQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []tree.NodeID
	queued   map[tree.NodeID]struct{}
	inFlight int
	closed   bool

	// length mirrors len(items) for lock-free progress reads.
	length atomic.Int64
}

func newWorkQueue() *workQueue {
	q := &workQueue{queued: make(map[tree.NodeID]struct{})}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends ids to the back of the queue.
func (q *workQueue) push(ids ...tree.NodeID) {
	if len(ids) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range ids {
		if _, found := q.queued[id]; found {
			continue
		}
		q.queued[id] = struct{}{}
		q.items = append(q.items, id)
	}
	q.length.Store(int64(len(q.items)))
	q.cond.Broadcast()
}

// pushFront puts a parked folder back at the head of the queue.
func (q *workQueue) pushFront(id tree.NodeID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, found := q.queued[id]; found {
		return
	}
	q.queued[id] = struct{}{}
	q.items = append([]tree.NodeID{id}, q.items...)
	q.length.Store(int64(len(q.items)))
	q.cond.Broadcast()
}

// pop blocks until an ID is available and marks it in flight.
// It returns false once the queue is closed or the crawl is quiescent.
func (q *workQueue) pop() (tree.NodeID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		if q.inFlight == 0 {
			q.closed = true
			q.cond.Broadcast()
			break
		}
		q.cond.Wait()
	}
	if q.closed {
		return 0, false
	}

	id := q.items[0]
	q.items = q.items[1:]
	delete(q.queued, id)
	q.inFlight++
	q.length.Store(int64(len(q.items)))
	return id, true
}

// done settles one in-flight ID. Quiescence is detected under the same lock
// right after the decrement.
func (q *workQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	if q.inFlight == 0 && len(q.items) == 0 {
		q.closed = true
	}
	q.cond.Broadcast()
}

// close wakes every waiting worker and makes pop return false.
// Queued IDs are kept.
func (q *workQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// reopen allows pop to return IDs again after close.
func (q *workQueue) reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
}

// pending returns the queued IDs in order.
func (q *workQueue) pending() []tree.NodeID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]tree.NodeID(nil), q.items...)
}

// len returns the queue length without locking.
func (q *workQueue) len() int {
	return int(q.length.Load())
}
