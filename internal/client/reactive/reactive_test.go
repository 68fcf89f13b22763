package reactive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutorun_RerunsOnFlush(t *testing.T) {
	tr := NewTracker()
	name := NewVar("Kitchen")

	var seen []string
	tr.Autorun(func(c *Computation) {
		seen = append(seen, name.Get(c))
	})
	require.Equal(t, []string{"Kitchen"}, seen)

	name.Set("Garage")
	assert.Equal(t, []string{"Kitchen"}, seen, "reruns wait for Flush")
	assert.True(t, tr.Pending())

	tr.Flush()
	assert.Equal(t, []string{"Kitchen", "Garage"}, seen)
	assert.False(t, tr.Pending())
}

func TestVar_SetSameValueDoesNotInvalidate(t *testing.T) {
	tr := NewTracker()
	v := NewVar(3)

	runs := 0
	tr.Autorun(func(c *Computation) {
		v.Get(c)
		runs++
	})

	v.Set(3)
	tr.Flush()
	assert.Equal(t, 1, runs)
}

func TestVar_EqualsOnlyRerunsWhenAnswerChanges(t *testing.T) {
	tr := NewTracker()
	selected := NewVar("")

	runsA, runsB := 0, 0
	tr.Autorun(func(c *Computation) {
		selected.Equals(c, "room-a")
		runsA++
	})
	tr.Autorun(func(c *Computation) {
		selected.Equals(c, "room-b")
		runsB++
	})

	selected.Set("room-a")
	tr.Flush()
	assert.Equal(t, 2, runsA)
	assert.Equal(t, 1, runsB)

	selected.Set("room-c")
	tr.Flush()
	assert.Equal(t, 3, runsA)
	assert.Equal(t, 1, runsB)

	selected.Set("room-b")
	tr.Flush()
	assert.Equal(t, 3, runsA)
	assert.Equal(t, 2, runsB)
}

func TestComputation_StopRunsCallbacks(t *testing.T) {
	tr := NewTracker()
	v := NewVar(0)

	var events []string
	c := tr.Autorun(func(c *Computation) {
		v.Get(c)
		events = append(events, "run")
		c.OnInvalidate(func() { events = append(events, "invalidate") })
	})
	c.OnStop(func() { events = append(events, "stop") })

	c.Stop()
	assert.True(t, c.Stopped())

	v.Set(1)
	tr.Flush()
	assert.Equal(t, []string{"run", "invalidate", "stop"}, events)
}

func TestComputation_FirstRun(t *testing.T) {
	tr := NewTracker()
	v := NewVar(0)

	var first []bool
	tr.Autorun(func(c *Computation) {
		v.Get(c)
		first = append(first, c.FirstRun())
	})
	v.Set(1)
	tr.Flush()

	assert.Equal(t, []bool{true, false}, first)
}

func TestTracker_FlushUntilQuiescent(t *testing.T) {
	tr := NewTracker()
	a := NewVar(0)
	b := NewVar(0)

	tr.Autorun(func(c *Computation) {
		b.Set(a.Get(c) * 10)
	})
	var got []int
	tr.Autorun(func(c *Computation) {
		got = append(got, b.Get(c))
	})

	a.Set(2)
	tr.Flush()
	assert.Equal(t, []int{0, 20}, got)
}

func TestTracker_AfterFlush(t *testing.T) {
	tr := NewTracker()
	v := NewVar("x")

	var order []string
	tr.Autorun(func(c *Computation) {
		order = append(order, "run:"+v.Get(c))
	})

	v.Set("y")
	tr.AfterFlush(func() { order = append(order, "after") })
	tr.Flush()

	assert.Equal(t, []string{"run:x", "run:y", "after"}, order)
}

func TestTracker_OnPendingFiresOncePerCycle(t *testing.T) {
	tr := NewTracker()
	scheduled := 0
	tr.OnPending(func() { scheduled++ })

	a := NewVar(0)
	b := NewVar(0)
	tr.Autorun(func(c *Computation) { a.Get(c) })
	tr.Autorun(func(c *Computation) { b.Get(c) })

	a.Set(1)
	b.Set(1)
	assert.Equal(t, 1, scheduled)

	tr.Flush()
	a.Set(2)
	assert.Equal(t, 2, scheduled)
}

func TestDependency_NilComputationIsUntracked(t *testing.T) {
	var d Dependency
	assert.False(t, d.Depend(nil))
	assert.False(t, d.HasDependents())
	assert.NotPanics(t, d.Changed)
}

func TestDependency_DroppedAfterInvalidation(t *testing.T) {
	tr := NewTracker()
	var d Dependency
	read := true

	runs := 0
	tr.Autorun(func(c *Computation) {
		runs++
		if read {
			d.Depend(c)
		}
	})
	require.True(t, d.HasDependents())

	read = false
	d.Changed()
	tr.Flush()
	assert.False(t, d.HasDependents())

	d.Changed()
	tr.Flush()
	assert.Equal(t, 2, runs)
}
