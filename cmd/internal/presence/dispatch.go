package presence

import "sync"

// dispatcher hands transitions to the hook on its own goroutine, in sequence
// order. Edges are numbered while the user's entry is locked and pushed once
// the entry is released, so a push can arrive ahead of a lower number; the
// loop holds it back until the gap closes.
type dispatcher struct {
	mu        sync.Mutex
	cond      *sync.Cond
	pending   map[uint64]Transition
	next      uint64
	delivered uint64
	started   bool
	stopped   bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		pending: make(map[uint64]Transition),
		next:    1,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// push queues t and never blocks on the hook.
func (d *dispatcher) push(t Transition, loop func()) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.pending[t.Seq] = t
	if !d.started {
		d.started = true
		go loop()
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// take removes the transitions that are next in sequence.
func (d *dispatcher) take() []Transition {
	d.mu.Lock()
	defer d.mu.Unlock()

	var batch []Transition
	for {
		t, ok := d.pending[d.next]
		if !ok {
			return batch
		}
		delete(d.pending, d.next)
		d.next++
		batch = append(batch, t)
	}
}

func (d *dispatcher) markDelivered(seq uint64) {
	d.mu.Lock()
	if seq > d.delivered {
		d.delivered = seq
	}
	d.cond.Broadcast()
	d.mu.Unlock()
}

// wait blocks until every transition up to seq was handed to the hook, or
// the dispatcher stopped.
func (d *dispatcher) wait(seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for d.delivered < seq && !d.stopped {
		d.cond.Wait()
	}
}

// close stops accepting transitions, delivers what is already in sequence
// and waits for the loop to exit.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	started := d.started
	d.cond.Broadcast()
	d.mu.Unlock()

	if started {
		close(d.stop)
		<-d.done
	}
}
