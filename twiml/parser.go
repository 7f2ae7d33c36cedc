// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package twiml

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Parse parses TwiML XML and returns a Response AST
func Parse(data []byte) (*Response, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	var resp Response

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "xml parse error")
		}

		if se, ok := token.(xml.StartElement); ok && se.Name.Local == "Response" {
			if err := parseResponse(decoder, &se, &resp); err != nil {
				return nil, err
			}
			return &resp, nil
		}
	}

	return nil, errors.New("no <Response> element found")
}

func parseResponse(decoder *xml.Decoder, start *xml.StartElement, resp *Response) error {
	if len(start.Attr) > 0 {
		return errors.Errorf("unknown attribute '%s' on <Response>", start.Attr[0].Name.Local)
	}
	children, err := parseChildren(decoder, "Response")
	if err != nil {
		return err
	}
	resp.Children = children
	return nil
}

// parseChildren reads nested verbs until the closing tag of parent
func parseChildren(decoder *xml.Decoder, parent string) ([]Node, error) {
	var nodes []Node
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return nodes, nil
		}
		if err != nil {
			return nil, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			node, err := parseNode(decoder, &t)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		case xml.EndElement:
			if t.Name.Local == parent {
				return nodes, nil
			}
		}
	}
}

func parseNode(decoder *xml.Decoder, start *xml.StartElement) (Node, error) {
	switch start.Name.Local {
	case "Say":
		return parseSay(decoder, start)
	case "Play":
		return parsePlay(decoder, start)
	case "Pause":
		return parsePause(decoder, start)
	case "Gather":
		return parseGather(decoder, start)
	case "Redirect":
		return parseRedirect(decoder, start)
	case "Hangup":
		if err := decoder.Skip(); err != nil {
			return nil, err
		}
		return &Hangup{}, nil
	default:
		return nil, errors.Errorf("unknown TwiML element: <%s>", start.Name.Local)
	}
}

func parseSay(decoder *xml.Decoder, start *xml.StartElement) (*Say, error) {
	say := &Say{}
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "voice":
			say.Voice = attr.Value
		case "language":
			say.Language = attr.Value
		case "loop":
			say.Loop = atoi(attr.Value)
		default:
			return nil, unknownAttr(attr, "Say")
		}
	}
	if err := decoder.DecodeElement(&say.Text, start); err != nil {
		return nil, err
	}
	return say, nil
}

func parsePlay(decoder *xml.Decoder, start *xml.StartElement) (*Play, error) {
	play := &Play{}
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "loop":
			play.Loop = atoi(attr.Value)
		default:
			return nil, unknownAttr(attr, "Play")
		}
	}
	if err := decoder.DecodeElement(&play.URL, start); err != nil {
		return nil, err
	}
	play.URL = strings.TrimSpace(play.URL)
	return play, nil
}

func parsePause(decoder *xml.Decoder, start *xml.StartElement) (*Pause, error) {
	pause := &Pause{Length: 1 * time.Second} // default 1s
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "length":
			if n, err := strconv.Atoi(attr.Value); err == nil {
				pause.Length = time.Duration(n) * time.Second
			}
		default:
			return nil, unknownAttr(attr, "Pause")
		}
	}
	if err := decoder.Skip(); err != nil {
		return nil, err
	}
	return pause, nil
}

func parseGather(decoder *xml.Decoder, start *xml.StartElement) (*Gather, error) {
	gather := &Gather{
		Input:  "dtmf",
		Method: "POST",
	}

	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "input":
			gather.Input = attr.Value
		case "action":
			gather.Action = attr.Value
		case "method":
			gather.Method = strings.ToUpper(attr.Value)
		case "timeout":
			gather.Timeout = attr.Value
		case "speechTimeout":
			gather.SpeechTimeout = attr.Value
		case "speechModel":
			gather.SpeechModel = attr.Value
		case "language":
			gather.Language = attr.Value
		case "hints":
			gather.Hints = attr.Value
		case "enhanced":
			gather.Enhanced = attr.Value == "true"
		case "bargeIn":
			gather.BargeIn = attr.Value == "true"
		case "actionOnEmptyResult":
			gather.ActionOnEmptyResult = attr.Value == "true"
		default:
			return nil, unknownAttr(attr, "Gather")
		}
	}

	children, err := parseChildren(decoder, "Gather")
	if err != nil {
		return nil, err
	}
	gather.Children = children
	return gather, nil
}

func parseRedirect(decoder *xml.Decoder, start *xml.StartElement) (*Redirect, error) {
	redirect := &Redirect{Method: "POST"}

	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "method":
			redirect.Method = strings.ToUpper(attr.Value)
		default:
			return nil, unknownAttr(attr, "Redirect")
		}
	}

	if err := decoder.DecodeElement(&redirect.URL, start); err != nil {
		return nil, err
	}
	redirect.URL = strings.TrimSpace(redirect.URL)
	return redirect, nil
}

func unknownAttr(attr xml.Attr, verb string) error {
	return errors.Errorf("unknown attribute '%s' on <%s>", attr.Name.Local, verb)
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
