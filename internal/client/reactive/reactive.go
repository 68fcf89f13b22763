// Package reactive reruns computations when the values they read change.
//
// Every dependency is explicit: a computation passes itself to the values it
// reads, and a Tracker owned by one client session queues invalidated
// computations until the next Flush. Nothing here is safe for concurrent use;
// a session touches its tracker from its event loop only.
package reactive

// Tracker owns one session's computations and its pending queue.
type Tracker struct {
	pending    []*Computation
	afterFlush []func()
	flushing   bool
	onPending  func()
	scheduled  bool
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// OnPending sets a hook called once whenever work becomes pending after a
// flush. Sessions use it to post a Flush to their event loop.
func (t *Tracker) OnPending(fn func()) {
	t.onPending = fn
}

// Pending reports whether invalidated computations or after-flush callbacks
// are waiting.
func (t *Tracker) Pending() bool {
	return len(t.pending) > 0 || len(t.afterFlush) > 0
}

// Autorun runs fn now and again on every Flush after something it read
// changed.
func (t *Tracker) Autorun(fn func(c *Computation)) *Computation {
	c := &Computation{tracker: t, fn: fn, firstRun: true}
	c.run()
	c.firstRun = false
	return c
}

// AfterFlush queues fn to run once the current or next flush has rerun every
// invalidated computation.
func (t *Tracker) AfterFlush(fn func()) {
	t.afterFlush = append(t.afterFlush, fn)
	t.schedule()
}

// Flush reruns invalidated computations and after-flush callbacks until
// nothing is pending. A Flush called while flushing returns immediately.
func (t *Tracker) Flush() {
	if t.flushing {
		return
	}
	t.flushing = true
	defer func() {
		t.flushing = false
		t.scheduled = false
	}()

	for t.Pending() {
		for len(t.pending) > 0 {
			c := t.pending[0]
			t.pending = t.pending[1:]
			c.rerun()
		}
		if len(t.afterFlush) > 0 {
			fn := t.afterFlush[0]
			t.afterFlush = t.afterFlush[1:]
			fn()
		}
	}
}

func (t *Tracker) enqueue(c *Computation) {
	t.pending = append(t.pending, c)
	t.schedule()
}

func (t *Tracker) schedule() {
	if t.flushing || t.scheduled {
		return
	}
	t.scheduled = true
	if t.onPending != nil {
		t.onPending()
	}
}

// Computation is one autorun.
type Computation struct {
	tracker      *Tracker
	fn           func(c *Computation)
	invalidated  bool
	stopped      bool
	firstRun     bool
	onInvalidate []func()
	onStop       []func()
}

// FirstRun reports whether this is the initial synchronous run.
func (c *Computation) FirstRun() bool {
	return c.firstRun
}

// Stopped reports whether Stop has been called.
func (c *Computation) Stopped() bool {
	return c.stopped
}

// Invalidated reports whether the computation is waiting to rerun.
func (c *Computation) Invalidated() bool {
	return c.invalidated
}

// OnInvalidate registers fn to run when the computation is next invalidated
// or stopped. Callbacks run once.
func (c *Computation) OnInvalidate(fn func()) {
	if c.invalidated {
		fn()
		return
	}
	c.onInvalidate = append(c.onInvalidate, fn)
}

// OnStop registers fn to run when the computation stops.
func (c *Computation) OnStop(fn func()) {
	if c.stopped {
		fn()
		return
	}
	c.onStop = append(c.onStop, fn)
}

// Invalidate marks the computation for rerun on the next Flush.
func (c *Computation) Invalidate() {
	if c.invalidated {
		return
	}
	c.invalidated = true
	if !c.stopped {
		c.tracker.enqueue(c)
	}

	callbacks := c.onInvalidate
	c.onInvalidate = nil
	for _, fn := range callbacks {
		fn()
	}
}

// Stop invalidates the computation for good.
func (c *Computation) Stop() {
	if c.stopped {
		return
	}
	c.stopped = true
	c.Invalidate()

	callbacks := c.onStop
	c.onStop = nil
	for _, fn := range callbacks {
		fn()
	}
}

func (c *Computation) rerun() {
	if c.stopped {
		return
	}
	c.run()
}

func (c *Computation) run() {
	c.invalidated = false
	c.fn(c)
}

// Dependency is a single source of change.
type Dependency struct {
	dependents map[*Computation]struct{}
}

// Depend registers c as a dependent until c is invalidated. A nil c records
// nothing. It reports whether c was newly added.
func (d *Dependency) Depend(c *Computation) bool {
	if c == nil || c.stopped {
		return false
	}
	if d.dependents == nil {
		d.dependents = make(map[*Computation]struct{})
	}
	if _, ok := d.dependents[c]; ok {
		return false
	}
	d.dependents[c] = struct{}{}
	c.OnInvalidate(func() { delete(d.dependents, c) })
	return true
}

// Changed invalidates every dependent.
func (d *Dependency) Changed() {
	for c := range d.dependents {
		c.Invalidate()
	}
}

// HasDependents reports whether anything currently depends on d.
func (d *Dependency) HasDependents() bool {
	return len(d.dependents) > 0
}
