package arena

// destructor finalizes one object placed in the arena.
type destructor struct {
	offset int    // byte offset of the object inside the arena buffer
	fn     func() // bound to the concrete object at registration
}

// registry is the destructor stack of an arena. Entries are appended in
// construction order and removed from the back only.
type registry struct {
	entries []destructor
}

func (r *registry) pushBack(d destructor) { r.entries = append(r.entries, d) }

func (r *registry) last() destructor { return r.entries[len(r.entries)-1] }

func (r *registry) popBack() {
	r.entries[len(r.entries)-1] = destructor{}
	r.entries = r.entries[:len(r.entries)-1]
}

func (r *registry) len() int { return len(r.entries) }

// truncate shrinks the registry to n entries. With invoke set the removed
// entries run newest first. Each entry is popped before it runs.
func (r *registry) truncate(n int, invoke bool) {
	for r.len() > n {
		d := r.last()
		r.popBack()
		if invoke && d.fn != nil {
			d.fn()
		}
	}
}
