package vslwire

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/vsl-go/vslcore/pkg/vsltag"
)

var errInvalidLength = errors.New("vslwire: record declares zero length")

// Marker carries the CLIENT/BACKEND transaction-side bit pair embedded in
// every VXID word.
type Marker uint8

const (
	MarkerNone    Marker = 0
	MarkerClient  Marker = 1
	MarkerBackend Marker = 2
)

func (m Marker) String() string {
	switch m {
	case MarkerClient:
		return "client"
	case MarkerBackend:
		return "backend"
	default:
		return "none"
	}
}

// VXID is a Varnish transaction identifier. Only the low 30 bits are
// significant; the top two bits of the wire word carry the Marker.
type VXID uint32

const vxidMask = 0x3FFFFFFF

// preamble is the optional 4-byte magic some VSL sources emit before the
// first record.
var preamble = [4]byte{'V', 'S', 'L', 0}

// Record is a single decoded VSL log entry: a tag, the transaction it
// belongs to, which side of the transaction emitted it, and its raw,
// not-yet-parsed payload.
type Record struct {
	Tag    vsltag.Tag
	Marker Marker
	VXID   VXID
	Data   []byte
}

const headerSize = 8 // two little-endian u32 words

// recordNeeded computes the total framed size of a record (header, payload
// and padding), given the payload length already decoded from the header.
func recordNeeded(length int) int {
	// length counts the payload including its trailing NUL; padding rounds
	// the whole record up to a 4-byte boundary.
	total := headerSize + length
	if pad := total % 4; pad != 0 {
		total += 4 - pad
	}
	return total
}

// DecodeRecord is a Parser that frames exactly one Record from the front of
// a window. Unknown tag codes decode to vsltag.Bogus rather than failing:
// framing must survive tags the engine doesn't yet know about.
func DecodeRecord(window []byte) Result {
	if len(window) < headerSize {
		return Result{Status: StatusIncomplete, Needed: Needed{Size: headerSize}}
	}

	word0 := binary.LittleEndian.Uint32(window[0:4])
	word1 := binary.LittleEndian.Uint32(window[4:8])

	tagCode := uint8(word0 >> 24)
	length := int(word0 & 0xFFFF)
	marker := Marker((word1 >> 30) & 0x3)
	vxid := VXID(word1 & vxidMask)

	if length == 0 {
		return Result{Status: StatusError, Err: errInvalidLength}
	}

	total := recordNeeded(length)
	if len(window) < total {
		return Result{Status: StatusIncomplete, Needed: Needed{Size: total}}
	}

	// payload is length-1 content bytes followed by a mandatory NUL.
	payload := make([]byte, length-1)
	copy(payload, window[headerSize:headerSize+length-1])

	return Result{
		Status:   StatusDone,
		Consumed: total,
		Value: Record{
			Tag:    vsltag.FromCode(tagCode),
			Marker: marker,
			VXID:   vxid,
			Data:   payload,
		},
	}
}

// SkipPreamble consumes the optional "VSL\0" magic if present at the start
// of the stream. It is a no-op if the stream doesn't start with it.
func SkipPreamble(s *StreamBuf) error {
	if err := s.Fill(len(preamble)); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	s.Apply(func(window []byte) Result {
		if len(window) >= len(preamble) && string(window[:len(preamble)]) == string(preamble[:]) {
			return Result{Status: StatusDone, Consumed: len(preamble)}
		}
		return Result{Status: StatusDone, Consumed: 0}
	})
	return nil
}
