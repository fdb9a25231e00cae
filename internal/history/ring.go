package history

// ring is a fixed-capacity FIFO. push is O(1); once full, each push
// overwrites the oldest entry.
type ring struct {
	buf   []Observation
	start int
	size  int
}

func newRing(capacity int) ring {
	return ring{buf: make([]Observation, capacity)}
}

func (r *ring) push(obs Observation) {
	idx := (r.start + r.size) % len(r.buf)
	r.buf[idx] = obs
	if r.size < len(r.buf) {
		r.size++
		return
	}
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) last() (Observation, bool) {
	if r.size == 0 {
		return Observation{}, false
	}
	return r.buf[(r.start+r.size-1)%len(r.buf)], true
}

// snapshot copies the contents oldest first.
func (r *ring) snapshot() []Observation {
	out := make([]Observation, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}
