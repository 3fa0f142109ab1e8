// Package server hosts the inbound moderation decision callback.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	ndserrs "newsdesk/internal/errors"
	"newsdesk/internal/moderation"
	"newsdesk/internal/newsdesk"
)

type Config struct {
	Port int
	// Shared secret expected in the X-Callback-Secret header.
	Secret string
}

type Server struct {
	*http.Server

	resolver *moderation.Resolver
	secret   string
}

func New(cfg Config, resolver *moderation.Resolver) *Server {
	srvr := &Server{
		resolver: resolver,
		secret:   cfg.Secret,
	}

	r := errRouter{Router: mux.NewRouter()}
	r.Use(accessLogMiddleware)
	r.Use(srvr.requireSecretMiddleware)
	r.HandleFuncE("/v1/moderation/decisions", srvr.postDecision).Methods(http.MethodPost)

	srvr.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handlers.RecoveryHandler()(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return srvr
}

type decisionReq struct {
	Action    string `json:"action"`
	MessageID int64  `json:"message_id"`
}

func (d decisionReq) Validate() error {
	if d.Action == "" {
		return ndserrs.E(http.StatusBadRequest, "action is required",
			ndserrs.Detail{Field: "action", Error: "empty"})
	}
	if d.MessageID == 0 {
		return ndserrs.E(http.StatusBadRequest, "message_id is required",
			ndserrs.Detail{Field: "message_id", Error: "empty"})
	}
	return nil
}

type decisionResp struct {
	NewsID int64  `json:"news_id"`
	Status string `json:"status"`
}

func (s *Server) postDecision(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeValid[decisionReq](r.Body)
	if err != nil {
		return err
	}

	item, err := s.resolver.Resolve(r.Context(), moderation.Action(req.Action), req.MessageID)
	switch {
	case errors.Is(err, newsdesk.ErrNotFound):
		return ndserrs.E(http.StatusNotFound, fmt.Errorf("no news item for message %d", req.MessageID))
	case errors.Is(err, newsdesk.ErrAlreadyDecided):
		return ndserrs.E(http.StatusConflict, err)
	case errors.Is(err, moderation.ErrUnsupportedAction):
		return ndserrs.E(http.StatusBadRequest, err)
	case err != nil:
		return err
	}

	status := newsdesk.StatusApproved
	if moderation.Action(req.Action) == moderation.ActionDecline {
		status = newsdesk.StatusDeclined
	}

	return writeJSON(w, http.StatusOK, decisionResp{NewsID: item.ID, Status: string(status)})
}

func (s *Server) requireSecretMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Callback-Secret")
		if s.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("error encoding json response: %s", err)
	}

	return nil
}

// validator is a surface that can validate itself and return an error
// if something is wrong.
type validator interface {
	Validate() error
}

// decodeValid decodes a request and then validates it.
func decodeValid[V validator](r io.Reader) (V, error) {
	var v V
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return v, ndserrs.E(http.StatusBadRequest, fmt.Errorf("error decoding request: %w", err))
	}
	if err := v.Validate(); err != nil {
		return v, err
	}

	return v, nil
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		writer := &respCodeWriter{ResponseWriter: w}
		next.ServeHTTP(writer, r)

		slog.Info("request completed",
			"method", r.Method,
			"url", r.URL.String(),
			"duration", time.Since(start),
			"status_code", writer.code,
		)
	})
}

// To trap the response status code for logging later.
type respCodeWriter struct {
	http.ResponseWriter
	code int
}

func (w *respCodeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// handlerFuncE is a modified type of [http.HandlerFunc] that returns an error.
type handlerFuncE func(w http.ResponseWriter, r *http.Request) error

func (f handlerFuncE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := f(w, r)
	if err == nil {
		return
	}

	// Either it's already a structured error, or coerce it to one
	sErr := &ndserrs.Error{}
	if !errors.As(err, &sErr) {
		slog.Error("unstructured handler error", "err", err)
		sErr = ndserrs.E(http.StatusInternalServerError, "internal server error")
	}

	if err := writeJSON(w, sErr.Status, sErr); err != nil {
		slog.Error("error writing response", "error", err)
	}
}

// errRouter is a newtype around a mux router that allows attaching handlers
// that return errors.
type errRouter struct {
	*mux.Router
}

func (r errRouter) HandleFuncE(path string, f handlerFuncE) *mux.Route {
	return r.Handle(path, f)
}
