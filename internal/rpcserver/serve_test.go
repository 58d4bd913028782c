package rpcserver_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbengine/personalkb/internal/config"
	"github.com/kbengine/personalkb/internal/dbbackend/sqlitebackend"
	"github.com/kbengine/personalkb/internal/entrystore"
	"github.com/kbengine/personalkb/internal/graph"
	"github.com/kbengine/personalkb/internal/ingest"
	"github.com/kbengine/personalkb/internal/planner"
	"github.com/kbengine/personalkb/internal/rpcserver"
	"github.com/kbengine/personalkb/internal/strategy"
	"github.com/kbengine/personalkb/internal/tools"
)

func newTestServer(t *testing.T) *tools.Server {
	t.Helper()
	backend, err := sqlitebackend.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	ctx := context.Background()
	require.NoError(t, backend.ApplySchema(ctx, 8))

	entries := entrystore.New(backend)
	g := graph.NewStore(backend)
	p := planner.New(entries, g, nil)
	exec := strategy.New(backend, entries, g, nil, p)
	ing := ingest.New(backend, entries, nil, g, nil, nil, 0)

	return tools.New(config.Config{}, backend, entries, nil, g, nil, ing, exec, p, nil)
}

func readResponses(t *testing.T, out *bytes.Buffer) []rpcserver.Response {
	t.Helper()
	var responses []rpcserver.Response
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var r rpcserver.Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		responses = append(responses, r)
	}
	return responses
}

func TestServeDispatchesKnownTool(t *testing.T) {
	srv := newTestServer(t)
	in := strings.NewReader(`{"tool":"kb_store","args":{"short_title":"t","long_title":"t","knowledge_details":"d"},"request_id":"1"}` + "\n")
	var out bytes.Buffer

	require.NoError(t, rpcserver.Serve(context.Background(), in, &out, srv))

	responses := readResponses(t, &out)
	require.Len(t, responses, 1)
	require.Equal(t, "1", responses[0].RequestID)
	require.Contains(t, responses[0].Result, "Created entry")
	require.Empty(t, responses[0].Error)
}

func TestServeUnknownToolReturnsEnvelopeError(t *testing.T) {
	srv := newTestServer(t)
	in := strings.NewReader(`{"tool":"kb_nonexistent","args":{}}` + "\n")
	var out bytes.Buffer

	require.NoError(t, rpcserver.Serve(context.Background(), in, &out, srv))

	responses := readResponses(t, &out)
	require.Len(t, responses, 1)
	require.Contains(t, responses[0].Error, "unknown tool")
}

func TestServeMalformedJSONReturnsEnvelopeError(t *testing.T) {
	srv := newTestServer(t)
	in := strings.NewReader("not json at all\n")
	var out bytes.Buffer

	require.NoError(t, rpcserver.Serve(context.Background(), in, &out, srv))

	responses := readResponses(t, &out)
	require.Len(t, responses, 1)
	require.Contains(t, responses[0].Error, "malformed request")
}

func TestServeSkipsBlankLines(t *testing.T) {
	srv := newTestServer(t)
	in := strings.NewReader("\n   \n" + `{"tool":"kb_maintain","args":{"action":"vacuum"}}` + "\n")
	var out bytes.Buffer

	require.NoError(t, rpcserver.Serve(context.Background(), in, &out, srv))

	responses := readResponses(t, &out)
	require.Len(t, responses, 1)
}

func TestServeProcessesMultipleRequestsInOrder(t *testing.T) {
	srv := newTestServer(t)
	lines := `{"tool":"kb_maintain","args":{"action":"vacuum"},"request_id":"a"}` + "\n" +
		`{"tool":"kb_maintain","args":{"action":"vacuum"},"request_id":"b"}` + "\n"
	in := strings.NewReader(lines)
	var out bytes.Buffer

	require.NoError(t, rpcserver.Serve(context.Background(), in, &out, srv))

	responses := readResponses(t, &out)
	require.Len(t, responses, 2)
	require.Equal(t, "a", responses[0].RequestID)
	require.Equal(t, "b", responses[1].RequestID)
}
