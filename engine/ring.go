package engine

// RingBuffer is a fixed-capacity FIFO of float64 samples. Once full, each
// Push evicts the oldest sample. It is not safe for concurrent use; the
// consumer goroutine owns every buffer.
type RingBuffer struct {
	buf  []float64
	head int // next write position
	size int
}

// NewRingBuffer creates an empty buffer. Capacity below 1 is raised to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{buf: make([]float64, capacity)}
}

// NewZeroRingBuffer creates a buffer already holding min(n, capacity) zeros,
// used to left-pad a new series so it lines up with older ones.
func NewZeroRingBuffer(capacity, n int) *RingBuffer {
	r := NewRingBuffer(capacity)
	if n > len(r.buf) {
		n = len(r.buf)
	}
	if n > 0 {
		r.size = n
		r.head = n % len(r.buf)
	}
	return r
}

// Push appends v, evicting the oldest sample when full.
func (r *RingBuffer) Push(v float64) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// Len returns the number of samples stored.
func (r *RingBuffer) Len() int { return r.size }

// Cap returns the fixed capacity.
func (r *RingBuffer) Cap() int { return len(r.buf) }

// Values returns a copy of the samples, oldest first.
func (r *RingBuffer) Values() []float64 {
	out := make([]float64, r.size)
	start := (r.head - r.size + len(r.buf)) % len(r.buf)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Last returns the newest sample.
func (r *RingBuffer) Last() (float64, bool) {
	if r.size == 0 {
		return 0, false
	}
	return r.buf[(r.head-1+len(r.buf))%len(r.buf)], true
}
