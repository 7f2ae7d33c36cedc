// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package server

import (
	"crypto/subtle"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"

	"github.com/munsheeriocod/voi-ai/model"
)

// CallRequest is the body of POST /calls, as JSON or a form
type CallRequest struct {
	ToNumber string `json:"to_number"`
	Name     string `json:"name,omitempty"`
	Country  string `json:"country,omitempty"`
}

type callResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	SID        string `json:"sid,omitempty"`
	To         string `json:"to,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	logger := hlog.FromRequest(r)
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, callResponse{Status: "error", Message: "unauthorized"})
		return
	}
	if s.initiator == nil {
		writeJSON(w, http.StatusServiceUnavailable, callResponse{Status: "error", Message: "outbound calling is not configured"})
		return
	}

	req, err := decodeCallRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, callResponse{Status: "error", Message: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.ToNumber) == "" {
		writeJSON(w, http.StatusBadRequest, callResponse{Status: "error", Message: "No phone number provided"})
		return
	}

	var contact *model.Contact
	if req.Name != "" || req.Country != "" {
		contact = &model.Contact{PhoneNumber: req.ToNumber, Name: req.Name, Country: req.Country}
	}

	res, err := s.initiator.Initiate(r.Context(), req.ToNumber, contact)
	if err != nil {
		logger.Error().Err(err).Msg("initiating call failed")
		writeJSON(w, http.StatusBadGateway, callResponse{Status: "error", Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, callResponse{
		Status:     "success",
		Message:    "Call initiated successfully",
		SID:        res.CallID.String(),
		To:         res.To,
		WebhookURL: res.GreetingURL,
	})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.APIToken == "" {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.cfg.APIToken)) == 1
}

func decodeCallRequest(r *http.Request) (CallRequest, error) {
	var req CallRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&req)
		return req, err
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.ToNumber = r.PostForm.Get("to_number")
	req.Name = r.PostForm.Get("name")
	req.Country = r.PostForm.Get("country")
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
