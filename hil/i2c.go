// Package hil holds the hardware interface contracts shared by drivers and
// transports: an asynchronous I²C device and a generic digital pin.
package hil

// I2CClient receives transaction completions from an I2CDevice.
// buf is the slice handed to Write/Read, now owned by the client again.
type I2CClient interface {
	CommandComplete(buf []byte, err error)
}

// I2CDevice is a split-phase transport bound to one bus address.
//
// Write and Read only start a transaction. A nil return promises exactly one
// CommandComplete on the client; a non-nil return promises none and the
// caller keeps the buffer.
type I2CDevice interface {
	Enable()
	Disable()
	Write(buf []byte, n int) error
	Read(buf []byte, n int) error
	SetClient(c I2CClient)
}
