package buffer

// Buffer accumulates byte segments which may arrive in arbitrarily small
// fragments. It acts as a quasi-arena: multiple finished segments share one
// backing slice, and an overall size limit guards against hostile input.
type Buffer struct {
	memory  []byte
	begin   int
	maxSize int
}

func New(initialSize, maxSize int) *Buffer {
	return &Buffer{
		memory:  make([]byte, 0, initialSize),
		maxSize: maxSize,
	}
}

// Append writes data unless the total stored amount would exceed the limit,
// in which case the data is discarded and false is returned.
func (b *Buffer) Append(data []byte) (ok bool) {
	if len(b.memory)+len(data) > b.maxSize {
		return false
	}

	b.memory = append(b.memory, data...)
	return true
}

// SegmentLength returns the number of bytes accumulated in the segment being
// currently written.
func (b *Buffer) SegmentLength() int {
	return len(b.memory) - b.begin
}

// Preview returns the current segment without completing it.
func (b *Buffer) Preview() []byte {
	return b.memory[b.begin:]
}

// Finish completes the current segment and returns it. The returned slice
// stays valid until Clear.
func (b *Buffer) Finish() []byte {
	segment := b.memory[b.begin:]
	b.begin = len(b.memory)

	return segment
}

// Clear resets the pointers. Previously returned segments become invalid.
func (b *Buffer) Clear() {
	b.begin = 0
	b.memory = b.memory[:0]
}
