// ABOUTME: RPC mode for editor integrations: JSONL requests in, JSONL responses out
// ABOUTME: Requests run concurrently up to a limit; initialize and shutdown wait for in-flight requests first

package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mauromedda/pyrefactor-go/internal/log"
)

const maxInFlight = 8

// Server handles RPC requests from an editor.
type Server struct {
	reader  *bufio.Scanner
	writer  io.Writer
	handler func(context.Context, Request) Response

	writeMu sync.Mutex
}

// NewServer creates an RPC server reading requests from r and writing
// responses to w. Nothing else may write to w.
func NewServer(r io.Reader, w io.Writer, handler func(context.Context, Request) Response) *Server {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	return &Server{
		reader:  scanner,
		writer:  w,
		handler: handler,
	}
}

// Run serves requests until the input ends, a shutdown request has been
// answered, or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(maxInFlight)

	for s.reader.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := s.reader.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.sendError("", ErrCodeParse, fmt.Sprintf("parse error: %v", err))
			continue
		}
		if req.Method == "" {
			s.sendError(req.ID, ErrCodeInvalidReq, "invalid request: method is required")
			continue
		}

		switch req.Method {
		case MethodShutdown:
			if err := g.Wait(); err != nil {
				return err
			}
			return s.respond(ctx, req)
		case MethodInitialize:
			// Requests read after initialize must see its session.
			if err := g.Wait(); err != nil {
				return err
			}
			if err := s.respond(ctx, req); err != nil {
				return err
			}
		default:
			g.Go(func() error { return s.respond(ctx, req) })
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return s.reader.Err()
}

func (s *Server) respond(ctx context.Context, req Request) error {
	log.Debug("rpc: %s (id %q)", req.Method, req.ID)
	resp := s.handler(ctx, req)
	resp.ID = req.ID

	data, err := json.Marshal(resp)
	if err != nil {
		s.sendError(req.ID, ErrCodeInternal, fmt.Sprintf("internal error: %v", err))
		return nil
	}
	if resp.Error != nil {
		log.Debug("rpc: %s failed: %s", req.Method, resp.Error.Message)
	}
	return s.writeLine(data)
}

func (s *Server) writeLine(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	data = append(data, '\n')
	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}

func (s *Server) sendError(id string, code int, message string) {
	resp := Response{
		ID:    id,
		Error: &Error{Code: code, Message: message},
	}
	data, _ := json.Marshal(resp)
	_ = s.writeLine(data)
}
