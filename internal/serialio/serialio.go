// Package serialio wraps the UART both nodes talk the line protocol
// over. It follows the teacher's serial_port.go almost exactly (same
// pkg/term open/read/write/close shape) but adds the time-bounded read
// the command receiver needs (spec §4.8, §5): a read that doesn't
// complete within the deadline returns command.TimeoutByte rather than
// blocking forever or erroring.
package serialio

import (
	"fmt"
	"time"

	"github.com/pkg/term"
	"golang.org/x/sys/unix"

	"github.com/n8kb/rfbridge/internal/command"
)

// Port is an open serial line, readable a byte at a time with a
// deadline and writable as a whole line at once.
type Port struct {
	t       *term.Term
	timeout time.Duration
}

// Open opens devicename at baud (0 leaves the current speed alone,
// matching serial_port_open's behavior) with the given per-byte read
// timeout.
func Open(devicename string, baud int, timeout time.Duration) (*Port, error) {
	t, err := term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("serialio: open %s: %w", devicename, err)
	}
	switch baud {
	case 0:
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
		if err := t.SetSpeed(baud); err != nil {
			t.Close()
			return nil, fmt.Errorf("serialio: set speed %d: %w", baud, err)
		}
	default:
		if err := t.SetSpeed(4800); err != nil {
			t.Close()
			return nil, fmt.Errorf("serialio: set fallback speed: %w", err)
		}
	}
	return &Port{t: t, timeout: timeout}, nil
}

// Write sends data verbatim, returning an error if short.
func (p *Port) Write(data []byte) (int, error) {
	n, err := p.t.Write(data)
	if err != nil {
		return n, fmt.Errorf("serialio: write: %w", err)
	}
	if n != len(data) {
		return n, fmt.Errorf("serialio: short write (%d of %d bytes)", n, len(data))
	}
	return n, nil
}

// ReadByte implements command.ByteSource: it waits up to the port's
// configured timeout for one byte, returning command.TimeoutByte if
// none arrives in time (spec §4.8's "~1000 tickcount" UART timeout,
// expressed here as a wall-clock deadline rather than a counter).
func (p *Port) ReadByte() (byte, error) {
	ready, err := p.pollReadable()
	if err != nil {
		return 0, fmt.Errorf("serialio: poll: %w", err)
	}
	if !ready {
		return command.TimeoutByte, nil
	}
	buf := make([]byte, 1)
	n, err := p.t.Read(buf)
	if n != 1 {
		return 0, fmt.Errorf("serialio: read: %w", err)
	}
	return buf[0], nil
}

func (p *Port) pollReadable() (bool, error) {
	fds := []unix.PollFd{{Fd: int32(p.t.Fd()), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(p.timeout.Milliseconds()))
	if err != nil {
		return false, err
	}
	return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
}

// Close releases the underlying device.
func (p *Port) Close() error {
	if p == nil {
		return nil
	}
	return p.t.Close()
}

var _ command.ByteSource = (*Port)(nil)
