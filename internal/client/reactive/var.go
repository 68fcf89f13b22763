package reactive

// Var is a reactive value. Set invalidates readers only when the value
// actually changes.
type Var[T comparable] struct {
	value  T
	dep    Dependency
	equals map[T]*Dependency
}

// NewVar creates a Var holding value.
func NewVar[T comparable](value T) *Var[T] {
	return &Var[T]{value: value}
}

// Get returns the value, making c depend on every change.
func (v *Var[T]) Get(c *Computation) T {
	v.dep.Depend(c)
	return v.value
}

// Equals reports whether the value equals x. c reruns only when that answer
// changes, not on every Set.
func (v *Var[T]) Equals(c *Computation, x T) bool {
	if c != nil {
		if v.equals == nil {
			v.equals = make(map[T]*Dependency)
		}
		dep, ok := v.equals[x]
		if !ok {
			dep = &Dependency{}
			v.equals[x] = dep
		}
		if dep.Depend(c) {
			c.OnInvalidate(func() {
				if !dep.HasDependents() && v.equals[x] == dep {
					delete(v.equals, x)
				}
			})
		}
	}
	return v.value == x
}

// Set stores value and invalidates readers if it differs from the current one.
func (v *Var[T]) Set(value T) {
	old := v.value
	if old == value {
		return
	}
	v.value = value
	v.dep.Changed()
	if dep, ok := v.equals[old]; ok {
		dep.Changed()
	}
	if dep, ok := v.equals[value]; ok {
		dep.Changed()
	}
}
