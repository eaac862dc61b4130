// Package server exposes the store as a newline-delimited JSON-RPC 2.0 tool
// server over stdio. Every request passes the schema gate before it reaches
// the store; responses carry either a result or a taxonomy-mapped error.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/basket/planstore/internal/gate"
	"github.com/basket/planstore/internal/otel"
	"github.com/basket/planstore/internal/persistence"
)

// JSON-RPC error codes. The standard range covers transport-level failures;
// the -320xx range maps the store's error taxonomy.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32000
	codeNotFound       = -32001
	codeConstraint     = -32002
)

// maxLineBytes bounds a single request line. Oversized payloads are a
// protocol error, not an excuse to balloon memory.
const maxLineBytes = 4 << 20

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server dispatches tool calls against one Store. Reader and writer are
// injectable so tests can drive the loop without a real stdio pair.
type Server struct {
	store   *persistence.Store
	gate    *gate.Gate
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *otel.Metrics

	in  io.Reader
	out io.Writer
	mu  sync.Mutex // serializes writes to out
}

// Options carries the optional collaborators; nil fields get no-op defaults.
type Options struct {
	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *otel.Metrics
}

func New(store *persistence.Store, g *gate.Gate, in io.Reader, out io.Writer, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(otel.TracerName)
	}
	return &Server{
		store:   store,
		gate:    g,
		logger:  logger,
		tracer:  tracer,
		metrics: opts.Metrics,
		in:      in,
		out:     out,
	}
}

// Serve reads requests line by line until EOF or context cancellation.
// Malformed lines produce an error response; they never kill the loop.
func (s *Server) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.reply(response{JSONRPC: "2.0", Error: &responseError{Code: codeParseError, Message: "parse error: " + err.Error()}})
			continue
		}
		s.handle(ctx, req)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request stream: %w", err)
	}
	return nil
}

func (s *Server) handle(ctx context.Context, req request) {
	start := time.Now()
	ctx, span := otel.StartServerSpan(ctx, s.tracer, "planstore.tool/"+req.Method,
		otel.AttrOperation.String(req.Method),
	)
	defer span.End()

	result, rpcErr := s.dispatch(ctx, req.Method, req.Params)

	elapsed := time.Since(start)
	if s.metrics != nil {
		s.metrics.ToolCallDuration.Record(ctx, elapsed.Seconds())
		if rpcErr != nil {
			s.metrics.ToolCallErrors.Add(ctx, 1)
		}
	}
	if rpcErr != nil {
		span.RecordError(errors.New(rpcErr.Message))
		s.logger.Warn("tool call failed", "method", req.Method, "code", rpcErr.Code, "error", rpcErr.Message, "elapsed_ms", elapsed.Milliseconds())
		s.reply(response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
		return
	}
	s.logger.Debug("tool call ok", "method", req.Method, "elapsed_ms", elapsed.Milliseconds())
	s.reply(response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (s *Server) dispatch(ctx context.Context, method string, params json.RawMessage) (any, *responseError) {
	handler, ok := s.handlers()[method]
	if !ok {
		return nil, &responseError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %q", method)}
	}

	// Schema gate first; the store never sees a malformed shape. The listing
	// method has no schema and skips the gate.
	if method != "list_operations" {
		if err := s.gate.Validate(method, params); err != nil {
			return nil, &responseError{Code: codeInvalidParams, Message: err.Error()}
		}
	}

	result, err := handler(ctx, params)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return result, nil
}

// mapStoreError folds the store's error taxonomy into JSON-RPC codes.
func mapStoreError(err error) *responseError {
	switch {
	case persistence.IsValidation(err):
		return &responseError{Code: codeInvalidParams, Message: err.Error()}
	case persistence.IsNotFound(err):
		return &responseError{Code: codeNotFound, Message: err.Error()}
	case persistence.IsConstraint(err):
		return &responseError{Code: codeConstraint, Message: err.Error()}
	default:
		return &responseError{Code: codeInternalError, Message: err.Error()}
	}
}

func (s *Server) reply(resp response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", "error", err)
		return
	}
	payload = append(payload, '\n')
	if _, err := s.out.Write(payload); err != nil {
		s.logger.Error("write response", "error", err)
	}
}
