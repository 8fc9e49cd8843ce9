package protocol

// OutputBuffer collects encoded bytes.
type OutputBuffer interface {
	// Output appends data.
	Output(data []byte)

	// CurPosition returns the current write position.
	CurPosition() int

	// Update overwrites the byte at pos.
	Update(pos int, val byte)

	// DataSince returns everything written after pos.
	DataSince(pos int) []byte
}

// ScratchOutput is an OutputBuffer backed by a fixed array sized for one frame.
type ScratchOutput struct {
	buf [MessageLengthMax]byte
	pos int
}

// NewScratchOutput returns an empty ScratchOutput.
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

// Output appends data, silently truncating at the frame limit.
func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < len(s.buf) {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns the bytes written so far. The slice aliases the scratch array.
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset discards everything written.
func (s *ScratchOutput) Reset() {
	s.pos = 0
}

// FifoBuffer is a byte ring used to accumulate partial frames from a stream.
// One slot is kept free to tell full from empty. Not safe for concurrent use.
type FifoBuffer struct {
	buf   []byte
	read  int
	write int
	size  int
}

// NewFifoBuffer returns a ring able to hold capacity-1 bytes.
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{
		buf:  make([]byte, capacity),
		size: capacity,
	}
}

// Write appends as much of data as fits and returns the count written.
func (f *FifoBuffer) Write(data []byte) int {
	written := 0
	for _, b := range data {
		next := (f.write + 1) % f.size
		if next == f.read {
			break
		}
		f.buf[f.write] = b
		f.write = next
		written++
	}
	return written
}

// Available returns the number of buffered bytes.
func (f *FifoBuffer) Available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return f.size - f.read + f.write
}

// Free returns the number of bytes that can still be written.
func (f *FifoBuffer) Free() int {
	return f.size - f.Available() - 1
}

// Data returns the buffered bytes as one contiguous slice, copying when the ring wraps.
func (f *FifoBuffer) Data() []byte {
	if f.read <= f.write {
		return f.buf[f.read:f.write]
	}
	result := make([]byte, f.Available())
	n := copy(result, f.buf[f.read:])
	copy(result[n:], f.buf[:f.write])
	return result
}

// Pop drops n bytes from the front.
func (f *FifoBuffer) Pop(n int) {
	if n >= f.Available() {
		f.read = f.write
		return
	}
	f.read = (f.read + n) % f.size
}

// IsEmpty reports whether nothing is buffered.
func (f *FifoBuffer) IsEmpty() bool {
	return f.read == f.write
}

// Reset empties the ring.
func (f *FifoBuffer) Reset() {
	f.read = 0
	f.write = 0
}
