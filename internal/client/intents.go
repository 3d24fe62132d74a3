package client

import "sync"

// intentQueueSize bounds the UI intents waiting for the worker.
const intentQueueSize = 64

// intentQueue applies UI intents one at a time, in the order they were
// queued. App-state transitions and typing changes depend on that order.
type intentQueue struct {
	queue chan func()
	quit  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func newIntentQueue() *intentQueue {
	q := &intentQueue{
		queue: make(chan func(), intentQueueSize),
		quit:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *intentQueue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.quit:
			return
		case fn := <-q.queue:
			fn()
		}
	}
}

// push queues fn. It is dropped once the queue is closed.
func (q *intentQueue) push(fn func()) {
	select {
	case q.queue <- fn:
	case <-q.quit:
	}
}

// flush waits until every intent queued before the call has been applied.
func (q *intentQueue) flush() {
	done := make(chan struct{})
	q.push(func() { close(done) })
	select {
	case <-done:
	case <-q.quit:
	}
}

// close stops the worker after the intent in progress. Pending intents are
// dropped.
func (q *intentQueue) close() {
	q.once.Do(func() { close(q.quit) })
	q.wg.Wait()
}
