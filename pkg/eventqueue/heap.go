package eventqueue

// entry is one queued event together with its ordering key.
type entry[E any] struct {
	event E
	prio  Priority
	seq   uint64
}

// before reports whether a must be executed before b: higher priority
// first, then lower insertion sequence.
func before[E any](a, b entry[E]) bool {
	if a.prio != b.prio {
		return a.prio > b.prio
	}
	return a.seq < b.seq
}

// eventHeap is a binary heap of entries ordered by before.
type eventHeap[E any] struct {
	data []entry[E]
}

func (h *eventHeap[E]) Len() int { return len(h.data) }

func (h *eventHeap[E]) less(i, j int) bool {
	return before(h.data[i], h.data[j])
}

func (h *eventHeap[E]) swap(i, j int) {
	h.data[i], h.data[j] = h.data[j], h.data[i]
}

func (h *eventHeap[E]) up(j int) {
	for {
		i := (j - 1) / 2 // parent
		if i == j || !h.less(j, i) {
			break
		}
		h.swap(i, j)
		j = i
	}
}

func (h *eventHeap[E]) down(i0, n int) {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 { // j1 < 0 after int overflow
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.less(j2, j1) {
			j = j2
		}
		if !h.less(j, i) {
			break
		}
		h.swap(i, j)
		i = j
	}
}

// push inserts e.
func (h *eventHeap[E]) push(e entry[E]) {
	h.data = append(h.data, e)
	h.up(len(h.data) - 1)
}

// pop removes and returns the first entry. The heap must not be empty.
func (h *eventHeap[E]) pop() entry[E] {
	n := len(h.data) - 1
	h.swap(0, n)
	h.down(0, n)

	e := h.data[n]
	var zero entry[E]
	h.data[n] = zero // release the event for the GC
	h.data = h.data[:n]
	return e
}
