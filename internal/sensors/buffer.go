package sensors

// readingRing is a fixed-capacity ring buffer of readings.
// Oldest entries are evicted first once capacity is reached.
// Not safe for concurrent use; the Registry's lock guards it.
type readingRing struct {
	readings []Reading
	head     int
	count    int
	capacity int
}

func newReadingRing(capacity int) *readingRing {
	if capacity < 1 {
		capacity = 1
	}
	return &readingRing{
		readings: make([]Reading, capacity),
		capacity: capacity,
	}
}

// Append adds a reading, overwriting the oldest when full.
func (b *readingRing) Append(r Reading) {
	b.readings[b.head] = r
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
}

// Len returns the number of retained readings.
func (b *readingRing) Len() int {
	return b.count
}

// Snapshot returns up to limit of the most recent readings in
// chronological order (oldest first). limit <= 0 returns everything.
func (b *readingRing) Snapshot(limit int) []Reading {
	if limit <= 0 || limit > b.count {
		limit = b.count
	}
	out := make([]Reading, 0, limit)
	start := b.count - limit
	for i := start; i < b.count; i++ {
		idx := (b.head - b.count + i + b.capacity*2) % b.capacity
		out = append(out, b.readings[idx])
	}
	return out
}
