// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	elevenLabsDefaultWSBase = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"

	// DefaultVoiceID is ElevenLabs' "Rachel"
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	DefaultModelID = "eleven_flash_v2_5"
	// mp3 plays directly through <Play>
	DefaultOutputFormat = "mp3_44100_128"
)

// ElevenLabs synthesizes speech over the ElevenLabs stream-input websocket and
// collects the whole clip before returning.
type ElevenLabs struct {
	apiKey       string
	wsBaseURL    string
	modelID      string
	outputFormat string
	dialer       *websocket.Dialer
}

var _ Synthesizer = (*ElevenLabs)(nil)

func NewElevenLabs(apiKey string) *ElevenLabs {
	return &ElevenLabs{
		apiKey:       strings.TrimSpace(apiKey),
		wsBaseURL:    elevenLabsDefaultWSBase,
		modelID:      DefaultModelID,
		outputFormat: DefaultOutputFormat,
		dialer:       websocket.DefaultDialer,
	}
}

// WithWSBaseURL points the client at another endpoint; {voice_id} is substituted
func (e *ElevenLabs) WithWSBaseURL(base string) *ElevenLabs {
	if base = strings.TrimSpace(base); base != "" {
		e.wsBaseURL = base
	}
	return e
}

func (e *ElevenLabs) WithModel(modelID string) *ElevenLabs {
	if modelID = strings.TrimSpace(modelID); modelID != "" {
		e.modelID = modelID
	}
	return e
}

type elevenLabsFrame struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Synthesize returns the encoded audio for text. Provider error frames and
// abnormal closes are returned as errors carrying the provider's reason, so
// IsQuotaError can classify them.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if e.apiKey == "" {
		return nil, errors.New("elevenlabs api key is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty text")
	}
	if voice = strings.TrimSpace(voice); voice == "" {
		voice = DefaultVoiceID
	}

	wsURL, err := e.streamURL(voice)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("xi-api-key", e.apiKey)
	conn, resp, err := e.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "elevenlabs dial: %s", resp.Status)
		}
		return nil, errors.Wrap(err, "elevenlabs dial")
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// opening frame, then the text with a flush, then end-of-input
	for _, payload := range []map[string]any{
		{"text": " "},
		{"text": strings.TrimSpace(text) + " ", "flush": true},
		{"text": ""},
	} {
		if err := conn.WriteJSON(payload); err != nil {
			return nil, errors.Wrap(err, "elevenlabs write")
		}
	}

	var audio []byte
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(audio) > 0 {
				return audio, nil
			}
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "elevenlabs read")
			}
			return nil, errors.Wrap(err, "elevenlabs read")
		}

		var frame elevenLabsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Error != "" {
			return nil, errors.Errorf("elevenlabs: %s: %s", frame.Error, frame.Message)
		}
		if frame.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(frame.Audio)
			if err == nil {
				audio = append(audio, chunk...)
			}
		}
		if frame.IsFinal {
			if len(audio) == 0 {
				return nil, errors.New("elevenlabs: no audio produced")
			}
			return audio, nil
		}
	}
}

func (e *ElevenLabs) streamURL(voiceID string) (string, error) {
	base := strings.ReplaceAll(e.wsBaseURL, "{voice_id}", url.PathEscape(voiceID))
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(err, "invalid elevenlabs ws url")
	}
	q := u.Query()
	if q.Get("model_id") == "" {
		q.Set("model_id", e.modelID)
	}
	if q.Get("output_format") == "" {
		q.Set("output_format", e.outputFormat)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
