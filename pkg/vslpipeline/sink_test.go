package vslpipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsl-go/vslcore/pkg/vslrecord"
)

func TestJSONSink_SessionWithResolvedClient(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf)

	client := vslrecord.NewResolvedLink[*vslrecord.ClientAccessRecord](&vslrecord.ClientAccessRecord{
		VXID: 1000,
		Kind: vslrecord.ClientFull,
	})
	sess := &vslrecord.SessionRecord{
		VXID:    10,
		Clients: []vslrecord.Link[*vslrecord.ClientAccessRecord]{client},
	}

	require.NoError(t, sink.Session(context.Background(), sess))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "session", decoded["kind"])

	sessionObj := decoded["session"].(map[string]any)
	clients := sessionObj["Clients"].([]any)
	require.Len(t, clients, 1)
	linkObj := clients[0].(map[string]any)
	assert.Equal(t, true, linkObj["resolved"])
}

func TestJSONSink_OrphanClientUnresolvedLink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf)

	link := vslrecord.NewUnresolvedLink[*vslrecord.BackendAccessRecord](2001, "fetch")
	client := &vslrecord.ClientAccessRecord{VXID: 2000, Kind: vslrecord.ClientFull, Backend: &link}

	require.NoError(t, sink.OrphanClient(context.Background(), client))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "orphan_client", decoded["kind"])
}

func TestJSONSink_HeaderIndexing(t *testing.T) {
	var headers vslrecord.Headers
	headers.Set("Host", "example.com")
	headers.Set("Cookie", "a=1")
	headers.Set("Cookie", "b=2")

	client := &vslrecord.ClientAccessRecord{
		VXID:    3000,
		Kind:    vslrecord.ClientFull,
		Request: vslrecord.Request{Method: "GET", URL: "/", Protocol: "HTTP/1.1", Headers: headers},
	}

	var buf bytes.Buffer
	sink := NewJSONSink(&buf).WithHeaderIndexing(true)
	require.NoError(t, sink.OrphanClient(context.Background(), client))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	idx := decoded["request_headers_indexed"].(map[string]any)
	assert.Equal(t, "example.com", idx["host"].([]any)[0])
	assert.Len(t, idx["cookie"].([]any), 2)
}

func TestJSONSink_HeaderIndexingDisabledByDefault(t *testing.T) {
	var headers vslrecord.Headers
	headers.Set("Host", "example.com")

	client := &vslrecord.ClientAccessRecord{
		VXID:    3001,
		Kind:    vslrecord.ClientFull,
		Request: vslrecord.Request{Method: "GET", URL: "/", Protocol: "HTTP/1.1", Headers: headers},
	}

	var buf bytes.Buffer
	sink := NewJSONSink(&buf)
	require.NoError(t, sink.OrphanClient(context.Background(), client))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	_, present := decoded["request_headers_indexed"]
	assert.False(t, present)
}

func TestNCSASink_WritesCombinedLogLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewNCSASink(&buf)

	client := &vslrecord.ClientAccessRecord{
		VXID:     4000,
		Kind:     vslrecord.ClientFull,
		Request:  vslrecord.Request{Method: "GET", URL: "/index.html", Protocol: "HTTP/1.1"},
		Response: &vslrecord.Response{Protocol: "HTTP/1.1", Status: 200, Reason: "OK"},
		Accounting: &vslrecord.Accounting{SentBody: 1234},
	}

	require.NoError(t, sink.OrphanClient(context.Background(), client))

	line := buf.String()
	assert.Contains(t, line, `"GET /index.html HTTP/1.1"`)
	assert.Contains(t, line, " 200 1234")
}

func TestNCSASink_SkipsBackendAndNonFullClientRecords(t *testing.T) {
	var buf bytes.Buffer
	sink := NewNCSASink(&buf)

	require.NoError(t, sink.OrphanBackend(context.Background(), &vslrecord.BackendAccessRecord{VXID: 5000}))
	assert.Empty(t, buf.String())

	restarted := &vslrecord.ClientAccessRecord{VXID: 5001, Kind: vslrecord.ClientRestartedEarly}
	require.NoError(t, sink.OrphanClient(context.Background(), restarted))
	assert.Empty(t, buf.String())
}
