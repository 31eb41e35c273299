package platform

import (
	"errors"
	"io"
	"time"

	"github.com/karalabe/hid"
	pkgerrors "github.com/pkg/errors"

	"ioexpander-go/errcode"
)

// MCP2221A USB identifiers.
const (
	bridgeVID = 0x04D8
	bridgePID = 0x00DD
)

const (
	msgLen  = 64
	dataMax = 60

	cmdStatus      = 0x10
	cmdWrite       = 0x90
	cmdWriteNoStop = 0x94
	cmdRead        = 0x91
	cmdReadRep     = 0x93
	cmdGetData     = 0x40

	stateIdle        = 0x00
	stateAddrNack    = 0x25
	statePartial     = 0x41
	stateNoStop      = 0x45
	stateReadPartial = 0x54
	stateReadDone    = 0x55
	stateReadError   = 0x7F

	pollRetries = 50
	pollDelay   = 300 * time.Microsecond
)

var (
	ErrNack       = errors.New("platform: address not acknowledged")
	ErrNoBridge   = errors.New("platform: no MCP2221A attached")
	ErrBridgeResp = errors.New("platform: bad bridge response")
	ErrRefused    = errors.New("platform: bridge refused command")
)

// hidConn is the part of a HID handle the bridge talks through.
type hidConn interface {
	io.ReadWriteCloser
}

// Bridge is an I²C bus reached through an MCP2221A USB HID bridge.
// It is not safe for concurrent use; one i2cio.Owner worker drives it.
type Bridge struct {
	dev hidConn
	msg [msgLen]byte
	rsp [msgLen]byte
}

// OpenBridge opens the first attached MCP2221A, or the one whose USB serial
// matches serial when it is non-empty.
func OpenBridge(serial string) (*Bridge, error) {
	for _, info := range hid.Enumerate(bridgeVID, bridgePID) {
		if serial != "" && info.Serial != serial {
			continue
		}
		dev, err := info.Open()
		if err != nil {
			return nil, pkgerrors.Wrapf(err, "open bridge %s", info.Path)
		}
		return newBridge(dev), nil
	}
	return nil, ErrNoBridge
}

func newBridge(dev hidConn) *Bridge { return &Bridge{dev: dev} }

func (b *Bridge) Close() error { return b.dev.Close() }

// Tx writes w then reads into r with a repeated start, as one transaction.
func (b *Bridge) Tx(addr uint16, w, r []byte) error {
	if len(w) > dataMax || len(r) > dataMax {
		return &errcode.E{C: errcode.InvalidParams, Op: "mcp2221", Msg: "transfer too long"}
	}
	if err := b.idle(); err != nil {
		return err
	}
	if len(w) > 0 {
		if err := b.write(addr, w, len(r) == 0); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		return b.read(addr, r, len(w) > 0)
	}
	return nil
}

// send issues one command report and reads its response into b.rsp.
func (b *Bridge) send(cmd byte, fill func(m []byte)) error {
	clear(b.msg[:])
	b.msg[0] = cmd
	if fill != nil {
		fill(b.msg[:])
	}
	if _, err := b.dev.Write(b.msg[:]); err != nil {
		return pkgerrors.Wrapf(err, "bridge write %#02x", cmd)
	}
	n, err := b.dev.Read(b.rsp[:])
	if err != nil {
		return pkgerrors.Wrapf(err, "bridge read %#02x", cmd)
	}
	if n < msgLen || b.rsp[0] != cmd {
		return pkgerrors.Wrapf(ErrBridgeResp, "cmd %#02x", cmd)
	}
	return nil
}

// accepted checks the completion byte of an I²C command response; non-zero
// means the bridge did not take the transfer.
func (b *Bridge) accepted(cmd byte) error {
	if b.rsp[1] != 0 {
		return pkgerrors.Wrapf(ErrRefused, "cmd %#02x status %#02x", cmd, b.rsp[1])
	}
	return nil
}

func (b *Bridge) state() (byte, error) {
	if err := b.send(cmdStatus, nil); err != nil {
		return 0, err
	}
	return b.rsp[8], nil
}

// idle cancels a transfer left over from an earlier failure.
func (b *Bridge) idle() error {
	st, err := b.state()
	if err != nil || st == stateIdle {
		return err
	}
	return b.send(cmdStatus, func(m []byte) { m[2] = 0x10 })
}

func (b *Bridge) write(addr uint16, w []byte, stop bool) error {
	cmd := byte(cmdWrite)
	if !stop {
		cmd = cmdWriteNoStop
	}
	err := b.send(cmd, func(m []byte) {
		m[1] = byte(len(w))
		m[3] = byte(addr << 1)
		copy(m[4:], w)
	})
	if err == nil {
		err = b.accepted(cmd)
	}
	if err != nil {
		return err
	}
	for i := 0; i < pollRetries; i++ {
		st, err := b.state()
		switch {
		case err != nil:
			return err
		case st == stateIdle, !stop && st == stateNoStop:
			return nil
		case st == stateAddrNack:
			return ErrNack
		}
		time.Sleep(pollDelay)
	}
	return &errcode.E{C: errcode.Timeout, Op: "mcp2221", Msg: "write"}
}

func (b *Bridge) read(addr uint16, r []byte, rep bool) error {
	cmd := byte(cmdRead)
	if rep {
		cmd = cmdReadRep
	}
	err := b.send(cmd, func(m []byte) {
		m[1] = byte(len(r))
		m[3] = byte(addr<<1) | 0x01
	})
	if err == nil {
		err = b.accepted(cmd)
	}
	if err != nil {
		return err
	}
	for i := 0; i < pollRetries; i++ {
		if err := b.send(cmdGetData, nil); err != nil {
			return err
		}
		switch {
		case b.rsp[1] == statePartial, b.rsp[3] == stateReadError:
			time.Sleep(pollDelay)
			continue
		case b.rsp[2] == stateAddrNack:
			return ErrNack
		case b.rsp[2] == stateIdle && b.rsp[3] == 0,
			b.rsp[2] == stateReadPartial, b.rsp[2] == stateReadDone:
			copy(r, b.rsp[4:4+len(r)])
			return nil
		}
		time.Sleep(pollDelay)
	}
	return &errcode.E{C: errcode.Timeout, Op: "mcp2221", Msg: "read"}
}
