package vslwire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsl-go/vslcore/pkg/vsltag"
)

func encodeRecord(t *testing.T, tagCode uint8, marker Marker, vxid VXID, payload string) []byte {
	t.Helper()
	length := len(payload) + 1 // payload bytes plus trailing NUL
	word0 := uint32(tagCode)<<24 | uint32(length)&0xFFFF
	word1 := uint32(marker)<<30 | uint32(vxid)&vxidMask

	buf := make([]byte, 8)
	buf[0], buf[1], buf[2], buf[3] = byte(word0), byte(word0>>8), byte(word0>>16), byte(word0>>24)
	buf[4], buf[5], buf[6], buf[7] = byte(word1), byte(word1>>8), byte(word1>>16), byte(word1>>24)

	buf = append(buf, []byte(payload)...)
	buf = append(buf, 0) // NUL terminator
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func TestDecodeRecord_SimplePayload(t *testing.T) {
	raw := encodeRecord(t, uint8(vsltag.ReqHeader), MarkerClient, 1000, "Host: example.com")

	res := DecodeRecord(raw)
	require.Equal(t, StatusDone, res.Status)
	require.Equal(t, len(raw), res.Consumed)

	rec := res.Value.(Record)
	assert.Equal(t, vsltag.ReqHeader, rec.Tag)
	assert.Equal(t, MarkerClient, rec.Marker)
	assert.Equal(t, VXID(1000), rec.VXID)
	assert.Equal(t, "Host: example.com", string(rec.Data))
}

func TestDecodeRecord_UnknownTagBecomesBogus(t *testing.T) {
	raw := encodeRecord(t, 0xEE, MarkerNone, 1, "whatever")
	res := DecodeRecord(raw)
	require.Equal(t, StatusDone, res.Status)
	assert.Equal(t, vsltag.Bogus, res.Value.(Record).Tag)
}

func TestDecodeRecord_IncompleteHeader(t *testing.T) {
	res := DecodeRecord([]byte{1, 2, 3})
	assert.Equal(t, StatusIncomplete, res.Status)
}

func TestDecodeRecord_IncompletePayload(t *testing.T) {
	raw := encodeRecord(t, uint8(vsltag.Begin), MarkerClient, 1, "req 0 rxreq")
	res := DecodeRecord(raw[:len(raw)-2])
	assert.Equal(t, StatusIncomplete, res.Status)
	assert.Greater(t, res.Needed.Size, 0)
}

func TestStreamBuf_FillApply_DecodesSequentialRecords(t *testing.T) {
	var wire bytes.Buffer
	wire.Write(encodeRecord(t, uint8(vsltag.Begin), MarkerClient, 100, "req 0 rxreq"))
	wire.Write(encodeRecord(t, uint8(vsltag.End), MarkerClient, 100, ""))

	sb := NewStreamBuf(&wire, 256)

	res, err := sb.FillApply(DecodeRecord)
	require.NoError(t, err)
	require.Equal(t, StatusDone, res.Status)
	assert.Equal(t, vsltag.Begin, res.Value.(Record).Tag)

	res, err = sb.FillApply(DecodeRecord)
	require.NoError(t, err)
	assert.Equal(t, vsltag.End, res.Value.(Record).Tag)

	_, err = sb.FillApply(DecodeRecord)
	assert.ErrorIs(t, err, io.EOF)
}

func TestStreamBuf_Fill_OverflowWhenRecordExceedsCapacity(t *testing.T) {
	raw := encodeRecord(t, uint8(vsltag.ReqHeader), MarkerClient, 1, string(bytes.Repeat([]byte("x"), 100)))
	sb := NewStreamBuf(bytes.NewReader(raw), 16)

	_, err := sb.FillApply(DecodeRecord)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestStreamBuf_CompactsAfterConsumption(t *testing.T) {
	var wire bytes.Buffer
	for i := 0; i < 50; i++ {
		wire.Write(encodeRecord(t, uint8(vsltag.Debug), MarkerNone, 1, "tick"))
	}
	sb := NewStreamBuf(&wire, 64)

	for i := 0; i < 50; i++ {
		res, err := sb.FillApply(DecodeRecord)
		require.NoError(t, err)
		require.Equal(t, StatusDone, res.Status)
	}
}
