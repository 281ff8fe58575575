// Package server exposes a copilot over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"copilots/internal/chat"
	"copilots/internal/sse"

	log "github.com/sirupsen/logrus"
)

const (
	maxBodyBytes = 10 << 20
	rootInfo     = "Bring my collection of copilots to the OpenBB Terminal Pro"
)

// Querier answers one query into an event sink.
type Querier interface {
	Query(ctx context.Context, req *chat.QueryRequest, sink chat.EventSink) error
}

// Analyst answers a single non-streaming analyst request.
type Analyst interface {
	Analyze(ctx context.Context, req *chat.AnalystRequest) (*chat.AnalystResponse, error)
}

type Server struct {
	querier    Querier
	analyst    Analyst
	descriptor atomic.Pointer[[]byte]
	profile    string
	origins    []string
	logger     log.FieldLogger
	addr       string
}

type Option func(*Server)

// WithDescriptor sets the document served at /copilots.json.
func WithDescriptor(doc any) (Option, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode copilots descriptor: %w", err)
	}
	return func(s *Server) { s.descriptor.Store(&b) }, nil
}

// WithProfile names the active profile in the GET / document.
func WithProfile(name string) Option {
	return func(s *Server) {
		s.profile = name
	}
}

// WithAnalyst enables POST /gohanalyst.
func WithAnalyst(a Analyst) Option {
	return func(s *Server) {
		s.analyst = a
	}
}

func WithOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

func WithLogger(l log.FieldLogger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

func New(q Querier, opts ...Option) *Server {
	s := &Server{
		querier: q,
		logger:  log.StandardLogger(),
		addr:    ":7777",
	}
	empty := []byte("{}")
	s.descriptor.Store(&empty)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadDescriptorFile reads a static /copilots.json document from disk.
func LoadDescriptorFile(path string) (Option, error) {
	b, err := readDescriptor(path)
	if err != nil {
		return nil, err
	}
	return func(s *Server) { s.descriptor.Store(&b) }, nil
}

// ReloadDescriptorFile replaces the served /copilots.json with the file at
// path. On error the current document stays in place.
func (s *Server) ReloadDescriptorFile(path string) error {
	b, err := readDescriptor(path)
	if err != nil {
		return err
	}
	s.descriptor.Store(&b)
	return nil
}

func readDescriptor(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read copilots file: %w", err)
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("copilots file %s is not valid JSON", path)
	}
	return b, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", s.handleRoot)
	mux.HandleFunc("/copilots.json", s.handleDescriptor)
	mux.HandleFunc("/v1/query", s.handleQuery)
	if s.analyst != nil {
		mux.HandleFunc("/gohanalyst", s.handleAnalyst)
	}
	return chain(mux, s.cors, s.requestLog)
}

// ListenAndServe serves until ctx is done, then drains for up to 5 seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"Info": rootInfo, "profile": s.profile})
}

func (s *Server) handleDescriptor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(*s.descriptor.Load())
}

func (s *Server) handleAnalyst(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	logger := loggerFrom(r.Context(), s.logger)

	var req chat.AnalystRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeValidation(w, []string{"body"}, err.Error(), "value_error.jsondecode")
		return
	}

	resp, err := s.analyst.Analyze(r.Context(), &req)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyConversation) {
			writeValidation(w, []string{"body", "query"}, err.Error(), "value_error")
			return
		}
		status := chat.StatusCode(err)
		logger.WithError(err).WithField("status", status).Warn("analyst query failed")
		writeError(w, status, chat.PublicMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	logger := loggerFrom(r.Context(), s.logger)

	var req chat.QueryRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeValidation(w, []string{"body"}, err.Error(), "value_error.jsondecode")
		return
	}
	if len(req.Messages) == 0 {
		writeValidation(w, []string{"body", "messages"}, chat.ErrEmptyConversation.Error(), "value_error")
		return
	}
	if req.UseDocs != nil {
		logger = logger.WithField("use_docs", *req.UseDocs)
	}
	logger.WithFields(log.Fields{
		"messages": len(req.Messages),
		"widgets":  len(req.Widgets),
	}).Debug("query received")

	sink := sse.NewWriter(w)
	err := s.querier.Query(r.Context(), &req, sink)
	switch {
	case err == nil:
		sink.Start()
	case !sink.Started():
		status := chat.StatusCode(err)
		entry := logger.WithError(err).WithField("status", status)
		if status >= http.StatusInternalServerError {
			entry.Warn("query failed")
		} else {
			entry.Info("query rejected")
		}
		if errors.Is(err, chat.ErrEmptyConversation) {
			writeValidation(w, []string{"body", "messages"}, err.Error(), "value_error")
			return
		}
		writeError(w, status, chat.PublicMessage(err))
	default:
		logger.WithError(err).Warn("stream truncated")
	}
}

type validationDetail struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func writeValidation(w http.ResponseWriter, loc []string, msg, typ string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []validationDetail{{Loc: loc, Msg: msg, Type: typ}},
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
