// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package server

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"

	"github.com/munsheeriocod/voi-ai/dialog"
	"github.com/munsheeriocod/voi-ai/lifecycle"
	"github.com/munsheeriocod/voi-ai/session"
	"github.com/munsheeriocod/voi-ai/speech"
	"github.com/munsheeriocod/voi-ai/twiml"
)

func (s *Server) handleGreeting(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("unreadable greeting form")
	}
	resp := s.dialog.Greeting(r.Context(), dialog.GreetingRequest{
		State:     session.FromRequest(r),
		CallSID:   r.PostForm.Get("CallSid"),
		From:      r.PostForm.Get("From"),
		To:        r.PostForm.Get("To"),
		Direction: r.PostForm.Get("Direction"),
	})
	s.writeTwiML(w, r, resp)
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("unreadable turn form")
	}
	resp := s.dialog.Turn(r.Context(), dialog.TurnRequest{
		State:     session.FromRequest(r),
		CallSID:   r.PostForm.Get("CallSid"),
		Utterance: utterance(r),
	})
	s.writeTwiML(w, r, resp)
}

// utterance prefers Twilio's speech transcript and falls back to a plain
// utterance field
func utterance(r *http.Request) string {
	if u := strings.TrimSpace(r.PostForm.Get("SpeechResult")); u != "" {
		return u
	}
	return strings.TrimSpace(r.Form.Get("utterance"))
}

func (s *Server) handleFinalOffer(w http.ResponseWriter, r *http.Request) {
	resp := s.dialog.FinalOffer(r.Context(), session.FromRequest(r))
	s.writeTwiML(w, r, resp)
}

// handleStatus answers 204 for every callback, including unknown calls and
// stale updates
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	defer w.WriteHeader(http.StatusNoContent)
	logger := hlog.FromRequest(r)

	if err := r.ParseForm(); err != nil {
		logger.Warn().Err(err).Msg("unreadable status callback")
		return
	}
	u, err := lifecycle.ParseCallback(r.PostForm)
	if err != nil {
		logger.Warn().Err(err).Msg("ignoring malformed status callback")
		return
	}
	if s.tracker == nil {
		return
	}
	outcome, err := s.tracker.RecordStatus(r.Context(), u)
	if err != nil {
		logger.Error().Err(err).Str("call_sid", u.CallID.String()).Msg("recording call status failed")
		return
	}
	logger.Debug().Str("call_sid", u.CallID.String()).Str("outcome", outcome.String()).Msg("status callback")
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if s.clips == nil {
		http.NotFound(w, r)
		return
	}
	audio, err := s.clips.Get(r.Context(), mux.Vars(r)["id"])
	switch {
	case errors.Is(err, speech.ErrClipNotFound):
		http.NotFound(w, r)
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("loading clip failed")
		http.Error(w, "clip unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(audio)
}

func (s *Server) writeTwiML(w http.ResponseWriter, r *http.Request, resp *twiml.Response) {
	raw, err := twiml.Render(resp)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("rendering twiml failed")
		http.Error(w, "twiml unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", twiml.ContentType)
	_, _ = w.Write(raw)
}
