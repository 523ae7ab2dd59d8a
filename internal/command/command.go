// Package command implements the host->radio command receiver (spec
// §4.8): mode toggles, the diagnostic stack dump, and transmit-frame
// staging.
package command

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/n8kb/rfbridge/internal/frame"
	"github.com/n8kb/rfbridge/internal/pulsebuf"
	"github.com/n8kb/rfbridge/internal/xmit"
)

// ByteSource is a time-bounded byte reader (spec §4.8, §5): a timed-out
// read returns (0xFF, nil), matching the firmware's documented timeout
// sentinel, rather than a Go error -- the caller must treat 0xFF as data
// it cannot trust, exactly as the protocol's own error-handling does.
type ByteSource interface {
	ReadByte() (byte, error)
}

// TimeoutByte is the sentinel value a ByteSource returns when a read
// times out (spec §4.8).
const TimeoutByte = 0xFF

// defaultSyncDuration returns the sync_duration a freshly-opened M*
// frame assumes until overridden by a "!<hh>" token (spec §4.8 table).
func defaultSyncDuration(typ frame.Type) byte {
	switch typ {
	case frame.ASK:
		return 0x63
	case frame.Manchester:
		return 0x40
	default:
		return 0
	}
}

// TxRequest is a parsed "M<K>..." transmit-frame command line, prior to
// checksum verification.
type TxRequest struct {
	Type         frame.Type
	SyncDuration byte
	BitCount     byte
	Checksum     byte
	sawChecksum  bool
	Payload      []byte
}

// ParseTxRequest parses the sub-tokens of an "M<K>..." line -- ":",
// "!", "#", "*" may appear in any order before the terminating newline
// (spec §4.8).
func ParseTxRequest(line string) (TxRequest, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 2 || line[0] != 'M' {
		return TxRequest{}, fmt.Errorf("command: not an M frame: %q", line)
	}
	var typ frame.Type
	switch line[1] {
	case 'A':
		typ = frame.ASK
	case 'M':
		typ = frame.Manchester
	case 'P':
		typ = frame.RawPulses
	default:
		return TxRequest{}, fmt.Errorf("command: unknown M sub-type %q", line[1])
	}

	req := TxRequest{Type: typ, SyncDuration: defaultSyncDuration(typ)}
	i := 2
	for i < len(line) {
		switch line[i] {
		case ':':
			j := i + 1
			for j < len(line) && isHexDigit(line[j]) {
				j++
			}
			hexStr := line[i+1 : j]
			if len(hexStr)%2 != 0 {
				return TxRequest{}, fmt.Errorf("command: odd-length payload hex %q", hexStr)
			}
			payload, err := hex.DecodeString(hexStr)
			if err != nil {
				return TxRequest{}, fmt.Errorf("command: bad payload hex: %w", err)
			}
			req.Payload = payload
			i = j
		case '!':
			v, err := parseHexByte(line, i)
			if err != nil {
				return TxRequest{}, err
			}
			req.SyncDuration = v
			i += 3
		case '#':
			v, err := parseHexByte(line, i)
			if err != nil {
				return TxRequest{}, err
			}
			req.BitCount = v
			i += 3
		case '*':
			v, err := parseHexByte(line, i)
			if err != nil {
				return TxRequest{}, err
			}
			req.Checksum = v
			req.sawChecksum = true
			i += 3
		default:
			return TxRequest{}, fmt.Errorf("command: unexpected token %q at %d", line[i], i)
		}
	}
	if !req.sawChecksum {
		return TxRequest{}, fmt.Errorf("command: frame missing checksum token")
	}
	return req, nil
}

func parseHexByte(line string, at int) (byte, error) {
	if at+3 > len(line) {
		return 0, fmt.Errorf("command: truncated token %q", line[at:])
	}
	v, err := strconv.ParseUint(line[at+1:at+3], 16, 8)
	if err != nil {
		return 0, fmt.Errorf("command: bad hex byte: %w", err)
	}
	return byte(v), nil
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// Verify reports whether the request's checksum matches the documented
// recurrence (spec §6.1, §8 property 1): 0x55 + Σ payload bytes +
// bcount + sync_duration, mod 256.
func (r TxRequest) Verify() bool {
	return frame.Checksum(r.Payload, r.BitCount, r.SyncDuration) == r.Checksum
}

// GenerateASKPulses expands an ASK payload's bits (MSB first across the
// byte stream, only the first bitCount bits) into pulse cells written
// starting at ring index 0 (spec §4.8): bit 1 places the dominant phase
// (sync_duration - sync_duration/4) on the high phase and the minor
// phase (sync_duration/4) on the low phase; bit 0 is the mirror image.
func GenerateASKPulses(buf *pulsebuf.Buffer, payload []byte, bitCount, syncDuration byte) {
	dominant := syncDuration - syncDuration/4
	minor := syncDuration / 4
	for i := 0; i < int(bitCount); i++ {
		byteIdx := i / 8
		bitIdx := 7 - (i % 8)
		var bit int
		if byteIdx < len(payload) {
			bit = int(payload[byteIdx]>>uint(bitIdx)) & 1
		}
		var cell pulsebuf.Cell
		if bit == 1 {
			cell = pulsebuf.Cell{High: dominant, Low: minor}
		} else {
			cell = pulsebuf.Cell{Low: dominant, High: minor}
		}
		buf.Set(uint8(i), cell)
	}
}

// StackStats supplies the diagnostic "STACK" reply body (spec §4.8
// table; body shape per SPEC_FULL's original_source/ supplement: since
// this implementation has no per-task stacks, it reports dispatcher
// high-water counters instead of stack-pointer watermarks).
type StackStats interface {
	// Snapshot returns a small set of named hex counters, e.g.
	// {"ticks": 0x1a2b, "syncruns": 0x04, "frames": 0x03, "aborts": 0x01}.
	Snapshot() map[string]uint32
}

// Receiver parses and executes one command line at a time (spec §4.8).
// It does not disable the transceiver on entry or re-enable receive on
// exit, and neither does the dispatcher.
type Receiver struct {
	Buf    *pulsebuf.Buffer
	Player *xmit.Player
	Stats  StackStats

	DisplayPulses bool
}

// NewReceiver builds a Receiver sharing buf and player with the rest of
// the radio node.
func NewReceiver(buf *pulsebuf.Buffer, player *xmit.Player, stats StackStats) *Receiver {
	return &Receiver{Buf: buf, Player: player, Stats: stats}
}

// readLine reads bytes until a newline, returning the line (without the
// newline) or, if a timeout sentinel is observed first, draining to
// end-of-line and reporting that condition so the caller can reply with
// an error (spec §4.8
// "On timeout or unrecognized character, the receiver drains to
// end-of-line and emits !<code>").
func (r *Receiver) readLine(src ByteSource) (line string, timedOut bool, err error) {
	var sb strings.Builder
	for {
		b, rerr := src.ReadByte()
		if rerr != nil {
			return "", false, rerr
		}
		if b == TimeoutByte {
			r.drainToEOL(src)
			return "", true, nil
		}
		if b == '\n' {
			return sb.String(), false, nil
		}
		sb.WriteByte(b)
	}
}

func (r *Receiver) drainToEOL(src ByteSource) {
	for {
		b, err := src.ReadByte()
		if err != nil || b == '\n' || b == TimeoutByte {
			return
		}
	}
}

// Run reads and executes exactly one command line from src, writing its
// reply to reply. It leaves the transceiver mode unchanged.
func (r *Receiver) Run(src ByteSource, reply io.Writer) error {
	line, timedOut, err := r.readLine(src)
	if err != nil {
		return err
	}
	if timedOut {
		fmt.Fprintf(reply, "!%02x\n", TimeoutByte)
		return nil
	}

	switch {
	case line == "PULSE":
		r.DisplayPulses = true
		fmt.Fprint(reply, "*OK\n")
	case line == "DEMOD":
		r.DisplayPulses = false
		fmt.Fprint(reply, "*OK\n")
	case line == "STACK":
		r.replyStack(reply)
	case strings.HasPrefix(line, "M"):
		r.runTxFrame(line, reply)
	default:
		code := byte(0)
		if len(line) > 0 {
			code = line[0]
		}
		fmt.Fprintf(reply, "!%02x\n", code)
	}
	return nil
}

func (r *Receiver) replyStack(reply io.Writer) {
	if r.Stats == nil {
		fmt.Fprint(reply, "*OK\n")
		return
	}
	for k, v := range r.Stats.Snapshot() {
		fmt.Fprintf(reply, "*%s:%x\n", k, v)
	}
}

func (r *Receiver) runTxFrame(line string, reply io.Writer) {
	req, err := ParseTxRequest(line)
	if err != nil {
		fmt.Fprintf(reply, "!%02x\n", line[0])
		return
	}
	if !req.Verify() {
		fmt.Fprint(reply, "!*\n")
		return
	}

	if req.Type == frame.ASK {
		GenerateASKPulses(r.Buf, req.Payload, req.BitCount, req.SyncDuration)
	}
	// Manchester/RawPulses payload tokens are reserved for future
	// extension (spec §4.8); no pulses are generated for them yet.

	if err := r.Player.Stage(req.BitCount); err != nil {
		// Frame too short: silently ignored per spec §7, but the
		// command itself still checksummed correctly, so reply OK.
		fmt.Fprint(reply, "*OK\n")
		return
	}
	// Hand off to the player; the shared ticker (internal/gpio) calls
	// Player.Tick until it returns to Idle (spec §4.9, §5).
	if err := r.Player.Start(); err != nil {
		fmt.Fprintf(reply, "!%02x\n", line[0])
		return
	}
	fmt.Fprint(reply, "*OK\n")
}
