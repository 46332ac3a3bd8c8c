package dma

// Rollback collects release actions for resources acquired one after another.
// Run releases everything registered so far in reverse order; Commit keeps
// the resources and forgets the actions.
//
//	var rb dma.Rollback
//	defer rb.Run()
//	... acquire, rb.Add(release) ...
//	rb.Commit()
type Rollback struct {
	fns []func()
}

// Add registers a release action
func (r *Rollback) Add(fn func()) {
	r.fns = append(r.fns, fn)
}

// Run releases every registered resource, newest first
func (r *Rollback) Run() {
	for i := len(r.fns) - 1; i >= 0; i-- {
		r.fns[i]()
	}
	r.fns = nil
}

// Commit drops the registered actions
func (r *Rollback) Commit() {
	r.fns = nil
}

// Len returns the number of registered actions
func (r *Rollback) Len() int {
	return len(r.fns)
}
