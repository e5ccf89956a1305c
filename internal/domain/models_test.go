package domain

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssumedDPI(t *testing.T) {
	assert.InDelta(t, 120.95, AssumedDPI(1000), 0.01)
	assert.InDelta(t, 300.0, AssumedDPI(2480), 0.1)
}

func TestNewPageFlagsAspect(t *testing.T) {
	assert.False(t, NewPage(nil, FormatPNG, 1000, 1414).AspectWarning)
	assert.False(t, NewPage(nil, FormatPNG, 1000, 1400).AspectWarning)
	assert.True(t, NewPage(nil, FormatPNG, 1400, 1000).AspectWarning)
	assert.True(t, NewPage(nil, FormatPNG, 0, 1000).AspectWarning)
	assert.True(t, NewPage(nil, FormatPNG, 1000, 1150).AspectWarning)
	assert.True(t, NewPage(nil, FormatPNG, 1000, 1180).AspectWarning)
	assert.True(t, NewPage(nil, FormatPNG, 1000, 1900).AspectWarning)
	assert.False(t, NewPage(nil, FormatPNG, 1000, 1250).AspectWarning)
}

func TestStampSpecEmptiness(t *testing.T) {
	assert.True(t, StampSpec{}.IsEmpty())
	assert.True(t, StampSpec{SealNumber: "  "}.IsEmpty())
	assert.True(t, StampSpec{CarrierCompany: "ACME"}.IsEmpty())
	assert.False(t, StampSpec{SealNumber: "AL2025001"}.IsEmpty())
	assert.False(t, StampSpec{Signature: []byte{1}}.IsEmpty())
}

func TestDecodeSignature(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G'}
	b64 := base64.StdEncoding.EncodeToString(payload)

	assert.Equal(t, payload, DecodeSignature("data:image/png;base64,"+b64))
	assert.Equal(t, payload, DecodeSignature(b64))
	assert.Nil(t, DecodeSignature("   "))
	assert.Equal(t, []byte("not base64!"), DecodeSignature("not base64!"))
}

func TestEncodeSignature(t *testing.T) {
	assert.Equal(t, "", EncodeSignature(nil))
	assert.Contains(t, EncodeSignature([]byte{0xFF, 0xD8, 0x00}), "data:image/jpeg;base64,")
	assert.Contains(t, EncodeSignature([]byte{0x89, 'P'}), "data:image/png;base64,")
}

func TestPageSetSize(t *testing.T) {
	ps := PageSet{{Data: make([]byte, 10)}, {Data: make([]byte, 5)}}
	assert.Equal(t, int64(15), ps.Size())
}
