package vslmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBegin(t *testing.T) {
	b, err := ParseBegin([]byte("req 1000 rxreq"))
	require.NoError(t, err)
	assert.Equal(t, Begin{Kind: "req", ParentVXID: 1000, Reason: "rxreq"}, b)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp([]byte("Start: 1469180762.484544 0.000000 0.000000"))
	require.NoError(t, err)
	assert.Equal(t, "Start", ts.Label)
	assert.InDelta(t, 1469180762.484544, float64(ts.Absolute), 1e-6)
	assert.InDelta(t, 0, float64(ts.SinceStart), 1e-6)
}

func TestParseHeaderField(t *testing.T) {
	h, err := ParseHeaderField([]byte("Host: example.com"))
	require.NoError(t, err)
	assert.Equal(t, HeaderField{Name: "Host", Value: "example.com"}, h)
}

func TestParseHeaderField_NoValue(t *testing.T) {
	h, err := ParseHeaderField([]byte("Connection:"))
	require.NoError(t, err)
	assert.Equal(t, "Connection", h.Name)
	assert.Equal(t, "", h.Value)
}

func TestParseLink(t *testing.T) {
	l, err := ParseLink([]byte("bereq 1001 fetch"))
	require.NoError(t, err)
	assert.Equal(t, LinkMsg{Kind: "bereq", ChildVXID: 1001, Reason: "fetch"}, l)
}

func TestParseSessOpen(t *testing.T) {
	s, err := ParseSessOpen([]byte("192.0.2.1 54321 a0 192.0.2.100 80 1469180762.000000 17"))
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1", s.RemoteIP)
	assert.Equal(t, 54321, s.RemotePort)
	assert.Equal(t, 80, s.LocalPort)
	assert.Equal(t, 17, s.FD)
}

func TestParseReqAcct(t *testing.T) {
	a, err := ParseReqAcct([]byte("82 0 82 304 6962 7266"))
	require.NoError(t, err)
	assert.Equal(t, uint64(82), a.RecvHeader)
	assert.Equal(t, uint64(6962), a.SentBody)
	assert.Equal(t, uint64(7266), a.SentTotal)
}

func TestParsePipeAcct(t *testing.T) {
	p, err := ParsePipeAcct([]byte("150 120 4096 8192"))
	require.NoError(t, err)
	assert.Equal(t, uint64(150), p.ClientReqHeaders)
	assert.Equal(t, uint64(8192), p.PipedToClient)
}

func TestParseBackendOpen_WithAddrs(t *testing.T) {
	b, err := ParseBackendOpen([]byte("19 default 192.0.2.50 80 192.0.2.10 40124"))
	require.NoError(t, err)
	require.NotNil(t, b.RemoteAddr)
	assert.Equal(t, "192.0.2.50", b.RemoteAddr.IP)
	assert.Equal(t, 80, b.RemoteAddr.Port)
}

func TestParseTTL(t *testing.T) {
	ttl, err := ParseTTL([]byte("RFC 120.000000 10.000000 3600.000000 1469180762.000000"))
	require.NoError(t, err)
	assert.Equal(t, "RFC", ttl.Source)
	assert.InDelta(t, 120.0, float64(ttl.TTL), 1e-6)
}

func TestParseFetchBody(t *testing.T) {
	fb, err := ParseFetchBody([]byte("3 length stream"))
	require.NoError(t, err)
	assert.Equal(t, 3, fb.Mode)
	assert.True(t, fb.Streamed)
}

func TestParseVCLAcl_Match(t *testing.T) {
	acl, err := ParseVCLAcl([]byte("MATCH internal 192.0.2.5"))
	require.NoError(t, err)
	assert.Equal(t, 1, int(acl.Result))
	assert.Equal(t, "internal", acl.Name)
}

func TestParseHitVXID(t *testing.T) {
	v, err := ParseHitVXID([]byte("555"))
	require.NoError(t, err)
	assert.Equal(t, uint32(555), v)
}
