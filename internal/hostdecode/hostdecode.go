// Package hostdecode implements the host-side software pulse decoder
// (spec §4.10): given a fully-captured "MP:" raw-pulse frame, it reruns
// the same sync-search and ASK/Manchester logic the firmware uses, in
// software, over the whole buffer at once -- no circular wrap (the
// frame length is already known) and no validation pre-pass (it always
// emits once a sync is found).
package hostdecode

import (
	"fmt"

	"github.com/n8kb/rfbridge/internal/decode"
	"github.com/n8kb/rfbridge/internal/frame"
	"github.com/n8kb/rfbridge/internal/pulsebuf"
	"github.com/n8kb/rfbridge/internal/syncsearch"
)

// Result is a re-decoded frame, ready to be rendered with
// frame.EncodeDecodedFrame.
type Result struct {
	Type         frame.Type
	Payload      []byte
	BitCount     byte
	SyncDuration byte
}

// ErrNoSync is returned when no sync preamble was ever found in cells.
var ErrNoSync = fmt.Errorf("hostdecode: no sync preamble found in captured pulses")

// CellsFromRawPayload reconstructs the pulse cells a "MP:" frame's hex
// payload encodes: frame.Accumulator.PushPulsePhases wrote each cell as
// (high, low) in that order (spec §4.6), so every two payload bytes is
// one cell.
func CellsFromRawPayload(payload []byte) []pulsebuf.Cell {
	cells := make([]pulsebuf.Cell, 0, len(payload)/2)
	for i := 0; i+1 < len(payload); i += 2 {
		cells = append(cells, pulsebuf.Cell{High: payload[i], Low: payload[i+1]})
	}
	return cells
}

// Redecode reruns sync-search and the matching decoder over cells,
// producing a clean ASK/OOK/Manchester frame for downstream matching
// (spec §4.10).
func Redecode(cells []pulsebuf.Cell) (Result, error) {
	search := syncsearch.New(0, false)
	var (
		outcome   syncsearch.Outcome
		committed bool
		i         int
	)
	for i = 0; i < len(cells); i++ {
		outcome, committed = search.FeedCell(uint8(i), cells[i])
		if committed {
			i++
			break
		}
	}
	if !committed {
		return Result{}, ErrNoSync
	}

	syncDuration := search.SyncDuration
	rest := cells[i:]
	var res decode.Result
	switch outcome {
	case syncsearch.DecodeASK:
		d := decode.NewASKNoPrepass(syncDuration)
		for _, c := range rest {
			d.Resume(c, 0)
		}
		res = d.Finish()
	case syncsearch.DecodeOOK:
		d := decode.NewOOKNoPrepass(syncDuration)
		for _, c := range rest {
			d.Resume(c, 0)
		}
		res = d.Finish()
	case syncsearch.DecodeManchester:
		d := decode.NewManchesterNoPrepass(syncDuration)
		for _, c := range rest {
			d.Resume(c, 0)
		}
		res = d.Finish()
	default:
		return Result{}, fmt.Errorf("hostdecode: raw-pulse classification not re-decodable")
	}

	return Result{
		Type:         res.Acc.Type(),
		Payload:      res.Acc.Payload(),
		BitCount:     byte(res.Acc.BitCount()),
		SyncDuration: byte(syncDuration),
	}, nil
}

// RedecodeLine parses a "MP:" header line and its raw payload, reruns
// Redecode over the reconstructed cells, and renders the result as a
// complete two-line decoded frame.
func RedecodeLine(headerLine string) (string, error) {
	typ, payload, err := frame.ParseHeaderLine(headerLine)
	if err != nil {
		return "", err
	}
	if typ != frame.RawPulses {
		return "", fmt.Errorf("hostdecode: not a raw-pulse frame: %q", headerLine)
	}
	cells := CellsFromRawPayload(payload)
	res, err := Redecode(cells)
	if err != nil {
		return "", err
	}
	return frame.EncodeDecodedFrame(res.Type, res.Payload, res.BitCount, res.SyncDuration), nil
}
