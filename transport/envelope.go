package transport

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rustyeddy/traderclient/errs"
)

// WireMode selects how JSON success bodies are laid out.
type WireMode int

const (
	// WireAuto decides from the first JSON object the server returns.
	WireAuto WireMode = iota
	// WireDirect bodies are the payload itself; failures use status 499.
	WireDirect
	// WireEnvelope bodies are {"status":0,"msg":"...","data":...}; a nonzero
	// status is an application error.
	WireEnvelope
)

func (m WireMode) String() string {
	switch m {
	case WireDirect:
		return "direct"
	case WireEnvelope:
		return "envelope"
	default:
		return "auto"
	}
}

// ParseWireMode parses "auto", "direct" or "envelope". Empty means auto.
func ParseWireMode(s string) (WireMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return WireAuto, nil
	case "direct":
		return WireDirect, nil
	case "envelope":
		return WireEnvelope, nil
	default:
		return WireAuto, fmt.Errorf("unknown wire mode %q", s)
	}
}

// LooksEnveloped reports whether b is an object carrying a numeric status and a msg.
func LooksEnveloped(b []byte) bool {
	if !isObject(b) {
		return false
	}
	res := gjson.GetManyBytes(b, "status", "msg")
	return res[0].Type == gjson.Number && res[1].Exists()
}

// Unwrap returns the payload of a JSON result under mode. For WireAuto the
// layout is detected and the detected mode is returned so callers can pin it;
// it stays WireAuto until a JSON object has been seen.
func Unwrap(res *Result, mode WireMode) ([]byte, WireMode, error) {
	if res == nil || res.Kind != PayloadJSON {
		var body []byte
		if res != nil {
			body = res.Body
		}
		return body, mode, nil
	}

	if mode == WireAuto && isObject(res.Body) {
		if LooksEnveloped(res.Body) {
			mode = WireEnvelope
		} else {
			mode = WireDirect
		}
	}
	if mode != WireEnvelope {
		return res.Body, mode, nil
	}

	if !LooksEnveloped(res.Body) {
		return nil, mode, errs.New(errs.KindDecode,
			errs.WithCommand(res.Command),
			errs.WithRequestID(res.RequestID),
			errs.WithBody(truncate(string(res.Body), maxErrorBody)),
			errs.WithMessage("response is not a status envelope"))
	}

	doc := gjson.ParseBytes(res.Body)
	if status := int(doc.Get("status").Int()); status != 0 {
		msg := firstLine(doc.Get("msg").String())
		if extra := doc.Get("data"); extra.Type == gjson.String {
			if line := firstLine(extra.String()); line != "" {
				msg = msg + ": " + line
			}
		}
		return nil, mode, errs.Trade(status, msg,
			errs.WithCommand(res.Command),
			errs.WithRequestID(res.RequestID),
			errs.WithHTTP(res.Status),
			errs.WithBody(truncate(string(res.Body), maxErrorBody)))
	}

	data := doc.Get("data")
	if !data.Exists() {
		return []byte("null"), mode, nil
	}
	return []byte(data.Raw), mode, nil
}

// DataField returns the "data" member of a JSON object when present, else b.
func DataField(b []byte) []byte {
	if !isObject(b) {
		return b
	}
	if data := gjson.GetBytes(b, "data"); data.Exists() {
		return []byte(data.Raw)
	}
	return b
}
