package audio

// Ring is a bounded FIFO of frames. Pushing into a full ring evicts the
// oldest frame. A Ring is not safe for concurrent use; it is owned by the
// single goroutine driving a detection loop.
type Ring struct {
	buf   []Frame
	start int
	n     int
}

// NewRing returns an empty ring that holds at most capacity frames.
// A capacity below 1 is treated as 1.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]Frame, capacity)}
}

// Push appends f. When the ring is full the oldest frame is evicted and
// returned with ok set to true.
func (r *Ring) Push(f Frame) (evicted Frame, ok bool) {
	if r.n == len(r.buf) {
		evicted = r.buf[r.start]
		r.buf[r.start] = f
		r.start = (r.start + 1) % len(r.buf)
		return evicted, true
	}
	r.buf[(r.start+r.n)%len(r.buf)] = f
	r.n++
	return Frame{}, false
}

// Frames returns a copy of the buffered frames, oldest first.
func (r *Ring) Frames() []Frame {
	out := make([]Frame, r.n)
	for i := range r.n {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Len returns the number of buffered frames.
func (r *Ring) Len() int { return r.n }

// Cap returns the ring capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Clear drops every buffered frame.
func (r *Ring) Clear() {
	clear(r.buf)
	r.start = 0
	r.n = 0
}
