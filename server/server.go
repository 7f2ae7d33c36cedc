// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package server exposes the Twilio voice webhooks, the synthesized audio
// clips and the outbound call API over HTTP.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/twilio/twilio-go/client"

	"github.com/munsheeriocod/voi-ai/dialer"
	"github.com/munsheeriocod/voi-ai/dialog"
	"github.com/munsheeriocod/voi-ai/lifecycle"
	"github.com/munsheeriocod/voi-ai/model"
	"github.com/munsheeriocod/voi-ai/session"
	"github.com/munsheeriocod/voi-ai/speech"
	"github.com/munsheeriocod/voi-ai/twiml"
)

// Dialog builds the TwiML for each voice webhook
type Dialog interface {
	Greeting(ctx context.Context, req dialog.GreetingRequest) *twiml.Response
	Turn(ctx context.Context, req dialog.TurnRequest) *twiml.Response
	FinalOffer(ctx context.Context, st session.State) *twiml.Response
}

// StatusRecorder applies status callbacks
type StatusRecorder interface {
	RecordStatus(ctx context.Context, u model.StatusUpdate) (lifecycle.Outcome, error)
}

// Initiator places outbound calls
type Initiator interface {
	Initiate(ctx context.Context, destination string, contact *model.Contact) (*dialer.Result, error)
}

// ClipSource serves stored audio
type ClipSource interface {
	Get(ctx context.Context, id string) ([]byte, error)
}

// Config controls request authentication
type Config struct {
	// PublicURL is the base Twilio signs webhook URLs against
	PublicURL string
	// AuthToken verifies X-Twilio-Signature when ValidateSignatures is set
	AuthToken          string
	ValidateSignatures bool
	// APIToken, when set, is required as a bearer token on the call API
	APIToken string
}

type Server struct {
	cfg       Config
	dialog    Dialog
	tracker   StatusRecorder
	initiator Initiator
	clips     ClipSource
	logger    zerolog.Logger
	validator *client.RequestValidator
	router    *mux.Router
}

// Option configures a Server
type Option func(*Server)

func WithTracker(t StatusRecorder) Option {
	return func(s *Server) {
		s.tracker = t
	}
}

func WithInitiator(i Initiator) Option {
	return func(s *Server) {
		s.initiator = i
	}
}

func WithClips(c ClipSource) Option {
	return func(s *Server) {
		s.clips = c
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New returns a server routing voice webhooks to d
func New(cfg Config, d Dialog, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		dialog: d,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.ValidateSignatures && cfg.AuthToken != "" {
		v := client.NewRequestValidator(cfg.AuthToken)
		s.validator = &v
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("req_id", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))

	voice := r.PathPrefix("/voice").Subrouter()
	voice.Use(s.verifySignature)
	voice.HandleFunc("/greeting", s.handleGreeting).Methods(http.MethodPost, http.MethodGet)
	voice.HandleFunc("/turn", s.handleTurn).Methods(http.MethodPost)
	voice.HandleFunc("/final-offer", s.handleFinalOffer).Methods(http.MethodPost)
	voice.HandleFunc("/status", s.handleStatus).Methods(http.MethodPost)

	r.HandleFunc(speech.AudioPath+"{id}", s.handleAudio).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/calls", s.handleCreateCall).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down within grace
func (s *Server) Run(ctx context.Context, addr string, readTimeout, writeTimeout, grace time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http shutdown")
	}
	return nil
}

// verifySignature rejects voice webhooks that Twilio did not sign
func (s *Server) verifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.validator == nil {
			next.ServeHTTP(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		params := make(map[string]string, len(r.PostForm))
		for k, vs := range r.PostForm {
			if len(vs) > 0 {
				params[k] = vs[0]
			}
		}
		target := strings.TrimRight(s.cfg.PublicURL, "/") + r.URL.RequestURI()
		if !s.validator.Validate(target, params, r.Header.Get("X-Twilio-Signature")) {
			hlog.FromRequest(r).Warn().Str("url", target).Msg("rejecting unsigned webhook")
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}
