package reliable

// seqWindow is a bounded set of recently seen sequence numbers.
// When full, inserting evicts the oldest-inserted entry, so a
// duplicate older than the whole window would be re-delivered; the
// window must be sized well past the retransmission horizon.
type seqWindow struct {
	limit int
	seen  map[uint64]struct{}
	order []uint64
}

func newSeqWindow(limit int) *seqWindow {
	return &seqWindow{
		limit: limit,
		seen:  make(map[uint64]struct{}, limit),
	}
}

// Contains reports whether seq is in the window.
func (w *seqWindow) Contains(seq uint64) bool {
	_, ok := w.seen[seq]
	return ok
}

// Insert adds seq, evicting the oldest entry when the window is
// full. Inserting a sequence number already present is a no-op.
func (w *seqWindow) Insert(seq uint64) {
	if _, ok := w.seen[seq]; ok {
		return
	}
	for len(w.order) >= w.limit {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.seen, oldest)
	}
	w.seen[seq] = struct{}{}
	w.order = append(w.order, seq)
}

// Len returns the number of tracked sequence numbers.
func (w *seqWindow) Len() int {
	return len(w.seen)
}
