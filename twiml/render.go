// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package twiml

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
	twilio "github.com/twilio/twilio-go/twiml"
)

// ContentType is the media type TwiML documents are served with
const ContentType = "text/xml"

// Render serializes resp into a TwiML document
func Render(resp *Response) ([]byte, error) {
	if resp == nil {
		return nil, errors.New("nil response")
	}
	elems, err := elements(resp.Children)
	if err != nil {
		return nil, err
	}
	doc, err := twilio.Voice(elems)
	if err != nil {
		return nil, errors.Wrap(err, "render twiml")
	}
	return []byte(doc), nil
}

func elements(nodes []Node) ([]twilio.Element, error) {
	out := make([]twilio.Element, 0, len(nodes))
	for _, n := range nodes {
		e, err := element(n)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func element(n Node) (twilio.Element, error) {
	switch v := n.(type) {
	case *Say:
		return &twilio.VoiceSay{
			Message:  v.Text,
			Voice:    v.Voice,
			Language: v.Language,
			Loop:     loop(v.Loop),
		}, nil
	case *Play:
		return &twilio.VoicePlay{Url: v.URL, Loop: loop(v.Loop)}, nil
	case *Pause:
		length := ""
		if v.Length > 0 {
			length = strconv.Itoa(int(v.Length / time.Second))
		}
		return &twilio.VoicePause{Length: length}, nil
	case *Gather:
		inner, err := elements(v.Children)
		if err != nil {
			return nil, err
		}
		opts := map[string]string{}
		if v.SpeechModel != "" {
			opts["speechModel"] = v.SpeechModel
		}
		if v.Enhanced {
			opts["enhanced"] = "true"
		}
		if v.BargeIn {
			opts["bargeIn"] = "true"
		}
		if v.ActionOnEmptyResult {
			opts["actionOnEmptyResult"] = "true"
		}
		return &twilio.VoiceGather{
			Input:              v.Input,
			Action:             v.Action,
			Method:             v.Method,
			Timeout:            v.Timeout,
			SpeechTimeout:      v.SpeechTimeout,
			Language:           v.Language,
			Hints:              v.Hints,
			InnerElements:      inner,
			OptionalAttributes: opts,
		}, nil
	case *Redirect:
		return &twilio.VoiceRedirect{Url: v.URL, Method: v.Method}, nil
	case *Hangup:
		return &twilio.VoiceHangup{}, nil
	default:
		return nil, errors.Errorf("unsupported TwiML node %T", n)
	}
}

func loop(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
