// Package httpapi exposes the pipeline over JSON/HTTP.
//
// Routes:
//
//	POST   /v1/sessions                     start a session
//	DELETE /v1/sessions/{id}                end a session
//	POST   /v1/sessions/{id}/turns          process one turn
//	POST   /v1/sessions/{id}/ack            acknowledge a critical crisis
//	GET    /v1/sessions/{id}/context        memory and crisis snapshot
//	GET    /v1/sessions/{id}/transitions    archived transitions (archive only)
//	GET    /v1/sessions/{id}/similar        similar archived turns (archive only)
//
// Failed turns answer with the mapped status code and a body carrying both
// the error and [affect.FallbackResult], so clients can always render
// something.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/attune/internal/archive/postgres"
	"github.com/MrWong99/attune/internal/observe"
	"github.com/MrWong99/attune/internal/pipeline"
	"github.com/MrWong99/attune/internal/session"
	"github.com/MrWong99/attune/pkg/affect"
	"github.com/MrWong99/attune/pkg/audio"
)

// DefaultMaxBodyBytes caps request bodies. Ten seconds of 48 kHz stereo
// PCM16, base64 encoded, fits comfortably.
const DefaultMaxBodyBytes = 4 << 20

// Service is the pipeline surface the API needs. [*pipeline.Pipeline]
// implements it.
type Service interface {
	StartSession(ctx context.Context, id string) (string, error)
	EndSession(ctx context.Context, id string) error
	Process(ctx context.Context, t pipeline.Turn) (*affect.InteractionResult, error)
	Acknowledge(ctx context.Context, id string) error
	Context(id string) (pipeline.Snapshot, error)
	History(id string) ([]session.Entry, error)
}

// Archive is the read side of the PostgreSQL archive.
type Archive interface {
	RecentTransitions(ctx context.Context, sessionID string, limit int) ([]affect.CrisisTransitionEvent, error)
	SimilarTurns(ctx context.Context, state affect.EmotionalState, k int, filter postgres.TurnFilter) ([]postgres.TurnMatch, error)
}

var (
	_ Service = (*pipeline.Pipeline)(nil)
	_ Archive = (*postgres.Store)(nil)
)

// Option configures a [Server].
type Option func(*Server)

// WithArchive enables the archive routes.
func WithArchive(a Archive) Option {
	return func(s *Server) { s.archive = a }
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// Server holds the route handlers.
type Server struct {
	svc     Service
	archive Archive
	maxBody int64
}

// New returns a Server backed by svc.
func New(svc Service, opts ...Option) *Server {
	s := &Server{svc: svc, maxBody: DefaultMaxBodyBytes}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds the routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", s.startSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.endSession)
	mux.HandleFunc("POST /v1/sessions/{id}/turns", s.processTurn)
	mux.HandleFunc("POST /v1/sessions/{id}/ack", s.acknowledge)
	mux.HandleFunc("GET /v1/sessions/{id}/context", s.snapshot)
	if s.archive != nil {
		mux.HandleFunc("GET /v1/sessions/{id}/transitions", s.transitions)
		mux.HandleFunc("GET /v1/sessions/{id}/similar", s.similar)
	}
}

// StartRequest is the optional body of POST /v1/sessions.
type StartRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// StartResponse answers POST /v1/sessions.
type StartResponse struct {
	SessionID string `json:"session_id"`
}

// TurnRequest is the body of POST /v1/sessions/{id}/turns. Audio is given
// either as base64 little-endian PCM16 or as float samples in [-1, 1].
type TurnRequest struct {
	Text string `json:"text,omitempty"`

	PCM16      []byte    `json:"pcm16,omitempty"`
	Samples    []float64 `json:"samples,omitempty"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Channels   int       `json:"channels,omitempty"`
}

// Turn converts the request into a pipeline turn.
func (r TurnRequest) Turn(sessionID string) (pipeline.Turn, error) {
	t := pipeline.Turn{SessionID: sessionID, Text: r.Text}
	switch {
	case len(r.PCM16) > 0 && len(r.Samples) > 0:
		return t, errors.New("pcm16 and samples are mutually exclusive")
	case len(r.PCM16) > 0:
		channels := r.Channels
		if channels == 0 {
			channels = 1
		}
		if channels != 1 && channels != 2 {
			return t, fmt.Errorf("channels %d must be 1 or 2", r.Channels)
		}
		t.PCM = &audio.PCM{Data: r.PCM16, SampleRate: r.SampleRate, Channels: channels, Timestamp: time.Now()}
	case len(r.Samples) > 0:
		t.Audio = &audio.Frame{Samples: r.Samples, SampleRate: r.SampleRate, Timestamp: time.Now()}
	}
	return t, nil
}

// ErrorBody describes a failure.
type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse is returned for every failed request. Result is set for
// failed turns.
type ErrorResponse struct {
	Error  ErrorBody                 `json:"error"`
	Result *affect.InteractionResult `json:"result,omitempty"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := s.decode(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, err, nil)
		return
	}
	id, err := s.svc.StartSession(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, StartResponse{SessionID: id})
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.EndSession(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) processTurn(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req TurnRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, r, err, affect.FallbackResult(id))
		return
	}
	turn, err := req.Turn(id)
	if err != nil {
		writeError(w, r, &affect.InputError{Op: "httpapi: turn", Reason: err.Error()}, affect.FallbackResult(id))
		return
	}
	res, err := s.svc.Process(r.Context(), turn)
	if err != nil {
		writeError(w, r, err, affect.FallbackResult(id))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) acknowledge(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Acknowledge(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Context(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) transitions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	events, err := s.archive.RecentTransitions(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": events})
}

// similar finds archived turns of other sessions whose affect is closest to
// the session's latest state.
func (s *Server) similar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	k, err := queryInt(r, "k", 5)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	history, err := s.svc.History(id)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	if len(history) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"matches": []postgres.TurnMatch{}})
		return
	}
	latest := history[len(history)-1].State
	matches, err := s.archive.SimilarTurns(r.Context(), latest, k, postgres.TurnFilter{ExcludeSessionID: id})
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &requestError{status: http.StatusRequestEntityTooLarge, msg: fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)}
		}
		return &affect.InputError{Op: "httpapi: decode", Reason: "malformed JSON body", Err: err}
	}
	return nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > 1000 {
		return 0, &affect.InputError{Op: "httpapi: query", Reason: fmt.Sprintf("%s must be an integer in [1, 1000]", name)}
	}
	return n, nil
}

// requestError is a transport-level failure with a fixed status.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

// StatusFor maps core errors to HTTP status codes.
func StatusFor(err error) (int, string) {
	var re *requestError
	switch {
	case errors.As(err, &re):
		return re.status, "request"
	case errors.Is(err, affect.ErrInput):
		return http.StatusBadRequest, "input"
	case errors.Is(err, affect.ErrState):
		return http.StatusNotFound, "state"
	case errors.Is(err, affect.ErrTimeout):
		return http.StatusServiceUnavailable, "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "aborted"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallback *affect.InteractionResult) {
	status, typ := StatusFor(err)
	if status >= http.StatusInternalServerError && typ == "internal" {
		observe.Logger(r.Context()).Error("httpapi: request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Type: typ, Message: err.Error()}, Result: fallback})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
