package frame

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ParseHeaderLine parses the first line of a decoded frame, "M<K>:<hex>",
// returning the message type and decoded payload bytes.
func ParseHeaderLine(line string) (Type, []byte, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 3 || line[0] != 'M' || line[2] != ':' {
		return 0, nil, fmt.Errorf("frame: malformed header line %q", line)
	}
	typ := Type(line[1])
	switch typ {
	case ASK, OOK, Manchester, RawPulses:
	default:
		return 0, nil, fmt.Errorf("frame: unknown message type %q", line[1])
	}
	hexPart := line[3:]
	if len(hexPart)%2 != 0 {
		return 0, nil, fmt.Errorf("frame: odd-length hex payload %q", hexPart)
	}
	payload, err := hex.DecodeString(hexPart)
	if err != nil {
		return 0, nil, fmt.Errorf("frame: bad hex payload: %w", err)
	}
	return typ, payload, nil
}

// ParseTrailerLine parses the second line of a decoded frame,
// "#<hh>!<hh>*<hh>", in any order of the three tokens, returning bcount,
// syncDuration, and checksum.
func ParseTrailerLine(line string) (bcount, syncDuration, checksum byte, err error) {
	line = strings.TrimRight(line, "\r\n")
	seen := map[byte]bool{}
	i := 0
	for i < len(line) {
		tok := line[i]
		if tok != '#' && tok != '!' && tok != '*' {
			return 0, 0, 0, fmt.Errorf("frame: unexpected trailer token %q at %d", tok, i)
		}
		if i+3 > len(line) {
			return 0, 0, 0, fmt.Errorf("frame: truncated trailer token %q", line[i:])
		}
		v, perr := strconv.ParseUint(line[i+1:i+3], 16, 8)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("frame: bad hex byte in trailer: %w", perr)
		}
		switch tok {
		case '#':
			bcount = byte(v)
		case '!':
			syncDuration = byte(v)
		case '*':
			checksum = byte(v)
		}
		seen[tok] = true
		i += 3
	}
	if !seen['#'] || !seen['!'] || !seen['*'] {
		return 0, 0, 0, fmt.Errorf("frame: trailer missing a token: %q", line)
	}
	return bcount, syncDuration, checksum, nil
}

// ParseDecodedFrame parses both lines of a decoded frame together.
func ParseDecodedFrame(headerLine, trailerLine string) (DecodedFrame, error) {
	typ, payload, err := ParseHeaderLine(headerLine)
	if err != nil {
		return DecodedFrame{}, err
	}
	bcount, sync, chk, err := ParseTrailerLine(trailerLine)
	if err != nil {
		return DecodedFrame{}, err
	}
	return DecodedFrame{Type: typ, Payload: payload, BitCount: bcount, SyncDuration: sync, Checksum: chk}, nil
}
