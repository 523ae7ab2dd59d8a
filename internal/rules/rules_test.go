package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n8kb/rfbridge/internal/frame"
)

const sampleYAML = `
rules:
  - name: doorbell
    type: "A"
    payload_hex: "^a5.*"
    action: notify.doorbell
    min_bit_count: 8
  - name: catch-all
    action: log.unknown
`

func writeTable(t *testing.T, body string) *Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	tbl, err := Load(path)
	require.NoError(t, err)
	return tbl
}

func TestMatchPrefersFirstMatchingRule(t *testing.T) {
	tbl := writeTable(t, sampleYAML)
	f := frame.DecodedFrame{Type: frame.ASK, Payload: []byte{0xA5, 0x01}, BitCount: 16}
	r, ok := tbl.Match(f)
	require.True(t, ok)
	assert.Equal(t, "doorbell", r.Name)
}

func TestMatchFallsThroughToCatchAll(t *testing.T) {
	tbl := writeTable(t, sampleYAML)
	f := frame.DecodedFrame{Type: frame.OOK, Payload: []byte{0x00}, BitCount: 8}
	r, ok := tbl.Match(f)
	require.True(t, ok)
	assert.Equal(t, "catch-all", r.Name)
}

func TestMatchRespectsMinBitCount(t *testing.T) {
	tbl := writeTable(t, `
rules:
  - name: long-only
    payload_hex: "^a5.*"
    min_bit_count: 64
`)
	f := frame.DecodedFrame{Type: frame.ASK, Payload: []byte{0xA5}, BitCount: 8}
	_, ok := tbl.Match(f)
	assert.False(t, ok)
}
