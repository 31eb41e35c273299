package mcp23008

// transferBuffer is a single-slot holder for the buffer lent to the bus.
// It is checked out for the whole of a transaction and is the only thing
// standing between two operations and the same in-flight bytes.
type transferBuffer struct {
	buf []byte
	out bool
}

func newTransferBuffer(n int) transferBuffer {
	return transferBuffer{buf: make([]byte, n)}
}

// acquire hands out the buffer, or reports false if it is already out.
func (t *transferBuffer) acquire() ([]byte, bool) {
	if t.out {
		return nil, false
	}
	t.out = true
	return t.buf, true
}

// release takes the buffer back. A release while nothing is checked out is
// ignored and reported as false.
func (t *transferBuffer) release(buf []byte) bool {
	if !t.out {
		return false
	}
	if len(buf) >= len(t.buf) {
		t.buf = buf[:len(t.buf)]
	}
	t.out = false
	return true
}

func (t *transferBuffer) checkedOut() bool { return t.out }
