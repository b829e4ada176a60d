// Package transport talks HTTP to the trading server and turns every response
// into either a payload or a classified *errs.Error.
package transport

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/rustyeddy/traderclient/errs"
)

// StatusTradeError is the status the server uses for application-level
// rejections. The reason travels in the body.
const StatusTradeError = 499

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 32 << 20

// maxErrorBody caps the body text kept on transport errors.
const maxErrorBody = 512

// PayloadKind tells how a success body was interpreted.
type PayloadKind int

const (
	PayloadEmpty PayloadKind = iota
	PayloadJSON
	PayloadText
	PayloadBinary
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadJSON:
		return "json"
	case PayloadText:
		return "text"
	case PayloadBinary:
		return "binary"
	default:
		return "empty"
	}
}

// Result is a normalized success response.
type Result struct {
	Kind        PayloadKind
	Status      int
	ContentType string
	Body        []byte
	Command     string
	RequestID   string
}

// Text returns the body as a string.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// IsJSON reports whether the body is a JSON document.
func (r *Result) IsJSON() bool {
	return r != nil && r.Kind == PayloadJSON
}

// Decode unmarshals a JSON body into v. An empty result leaves v untouched.
func (r *Result) Decode(v any) error {
	if r == nil || r.Kind == PayloadEmpty {
		return nil
	}
	if r.Kind != PayloadJSON {
		return errs.New(errs.KindDecode,
			errs.WithCommand(r.Command),
			errs.WithRequestID(r.RequestID),
			errs.WithMessage(fmt.Sprintf("expected json payload, got %s", r.Kind)))
	}
	return DecodeJSON(r.Body, v, r.Command, r.RequestID)
}

// DecodeJSON unmarshals b into v, classifying failures as decode errors.
func DecodeJSON(b []byte, v any, command, requestID string) error {
	if err := json.Unmarshal(b, v); err != nil {
		return errs.New(errs.KindDecode,
			errs.WithCommand(command),
			errs.WithRequestID(requestID),
			errs.WithBody(truncate(string(b), maxErrorBody)),
			errs.WithCause(err))
	}
	return nil
}

// StrictSuccess accepts 200, 201 and 204.
func StrictSuccess(status int) bool {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return true
	}
	return false
}

// Any2xx accepts the whole 2xx family.
func Any2xx(status int) bool {
	return status >= 200 && status < 300
}

// Normalizer classifies responses. The zero value uses StrictSuccess, caps
// bodies at 32 MiB and discards logs.
type Normalizer struct {
	Accept func(status int) bool
	Logger *zap.Logger
	// MaxBody is the largest body accepted, in bytes. Zero means the default.
	MaxBody int64
}

func (n *Normalizer) maxBody() int64 {
	if n == nil || n.MaxBody <= 0 {
		return maxBodyBytes
	}
	return n.MaxBody
}

func (n *Normalizer) accept(status int) bool {
	if n == nil || n.Accept == nil {
		return StrictSuccess(status)
	}
	return n.Accept(status)
}

func (n *Normalizer) logger() *zap.Logger {
	if n == nil || n.Logger == nil {
		return zap.NewNop()
	}
	return n.Logger
}

// Normalize reads and closes resp.Body. command labels diagnostics; when empty
// it is taken from the request URL.
func (n *Normalizer) Normalize(resp *http.Response, command string) (*Result, error) {
	if resp == nil {
		return nil, errs.New(errs.KindTransport, errs.WithCommand(command), errs.WithMessage("nil response"))
	}
	defer resp.Body.Close()

	var requestID string
	if resp.Request != nil {
		requestID = resp.Request.Header.Get(HeaderRequestID)
		if command == "" && resp.Request.URL != nil {
			command = CommandFromPath(resp.Request.URL.Path)
		}
	}

	limit := n.maxBody()
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, errs.New(errs.KindTransport,
			errs.WithCommand(command),
			errs.WithRequestID(requestID),
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage("read body"),
			errs.WithCause(err))
	}
	if int64(len(body)) > limit {
		return nil, errs.New(errs.KindTransport,
			errs.WithCommand(command),
			errs.WithRequestID(requestID),
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage(fmt.Sprintf("response body exceeds %d bytes", limit)))
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType := mediaTypeOf(contentType)
	log := n.logger().With(
		zap.String("request_id", requestID),
		zap.String("command", command),
		zap.String("label", Label(command)),
		zap.Int("status", resp.StatusCode),
	)

	switch {
	case n.accept(resp.StatusCode):
		res := &Result{
			Status:      resp.StatusCode,
			ContentType: contentType,
			Body:        body,
			Command:     command,
			RequestID:   requestID,
		}
		switch {
		case resp.StatusCode == http.StatusNoContent:
			res.Kind = PayloadEmpty
			res.Body = nil
		case isJSON(mediaType):
			if !json.Valid(body) {
				log.Warn("malformed json payload", zap.Int("bytes", len(body)))
				return nil, errs.New(errs.KindDecode,
					errs.WithCommand(command),
					errs.WithRequestID(requestID),
					errs.WithHTTP(resp.StatusCode),
					errs.WithBody(truncate(string(body), maxErrorBody)),
					errs.WithMessage("malformed json payload"))
			}
			res.Kind = PayloadJSON
		case strings.HasPrefix(mediaType, "text/"):
			res.Kind = PayloadText
		case len(body) == 0:
			res.Kind = PayloadEmpty
		default:
			res.Kind = PayloadBinary
		}
		return res, nil

	case resp.StatusCode == StatusTradeError:
		code, msg := parseTradeError(mediaType, body)
		log.Warn("trade rejected", zap.Int("code", code), zap.String("msg", msg))
		return nil, errs.Trade(code, msg,
			errs.WithCommand(command),
			errs.WithRequestID(requestID),
			errs.WithHTTP(resp.StatusCode),
			errs.WithBody(truncate(string(body), maxErrorBody)))

	default:
		text := truncate(strings.TrimSpace(string(body)), maxErrorBody)
		log.Warn("unexpected status", zap.String("msg", text))
		msg := http.StatusText(resp.StatusCode)
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, errs.New(errs.KindTransport,
			errs.WithCommand(command),
			errs.WithRequestID(requestID),
			errs.WithHTTP(resp.StatusCode),
			errs.WithBody(text),
			errs.WithMessage(msg))
	}
}

// parseTradeError extracts (code, message) from a 499 body. JSON bodies supply
// error_code or code and msg; free-text detail is cut at its first line and
// appended. Anything else is used verbatim with the HTTP status as code.
func parseTradeError(mediaType string, body []byte) (int, string) {
	if isJSON(mediaType) && gjson.ValidBytes(body) {
		doc := gjson.ParseBytes(body)
		if doc.IsObject() {
			code := StatusTradeError
			for _, key := range []string{"error_code", "code"} {
				if v := doc.Get(key); v.Exists() && v.Int() != 0 {
					code = int(v.Int())
					break
				}
			}

			msg := firstLine(doc.Get("msg").String())
			if msg == "" {
				msg = firstLine(doc.Get("message").String())
			}
			for _, key := range []string{"stack", "detail", "traceback"} {
				v := doc.Get(key)
				if v.Type != gjson.String {
					continue
				}
				if extra := firstLine(v.String()); extra != "" {
					if msg == "" {
						msg = extra
					} else {
						msg = msg + ": " + extra
					}
				}
				break
			}
			return code, msg
		}
	}
	return StatusTradeError, string(body)
}

func mediaTypeOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mt
}

func isJSON(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// isObject reports whether b holds a JSON object.
func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}
