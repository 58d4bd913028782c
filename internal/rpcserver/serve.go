package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kbengine/personalkb/internal/logx"
	"github.com/kbengine/personalkb/internal/tools"
)

var log = logx.Component("rpcserver")

func tryUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Serve reads one Request per line from in, dispatches it to srv, and
// writes one Response per line to out, blocking until in is exhausted or
// ctx is canceled. Requests are handled one at a time (spec.md §5:
// "one request is fully processed before the next starts"); there is no
// concurrent dispatch to serialize against.
func Serve(ctx context.Context, in io.Reader, out io.Writer, srv *tools.Server) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			log.Warn().Err(err).Msg("malformed request line")
			_ = enc.Encode(Response{Error: fmt.Sprintf("malformed request: %s", err)})
			continue
		}

		resp := dispatch(ctx, srv, req)
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
	return scanner.Err()
}

func dispatch(ctx context.Context, srv *tools.Server, req Request) Response {
	resp := Response{RequestID: req.RequestID}

	handler, ok := handlers[req.Tool]
	if !ok {
		resp.Error = fmt.Sprintf("unknown tool %q", req.Tool)
		return resp
	}

	result, err := handler(ctx, srv, req.Args)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Result = result
	return resp
}
