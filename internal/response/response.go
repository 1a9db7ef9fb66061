// Package response builds the uniform reply envelope used by the HTTP
// transport.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// InternalErrorBody is the plain text body of the fallback envelope.
const InternalErrorBody = "Internal error"

// Content types.
const (
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain; charset=utf-8"
)

// Envelope is a complete reply: status, headers and body.
type Envelope struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// ErrorBody is the JSON body of an error reply.
type ErrorBody struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// marshal is swapped in tests to force the fallback path.
var marshal = json.Marshal

// Success returns a 200 envelope carrying body as JSON.
func Success(headers http.Header, body any) Envelope {
	return build(http.StatusOK, headers, body)
}

// Error returns an envelope with status code and a {"message","code"} body.
func Error(headers http.Header, code int, message string) Envelope {
	return build(code, headers, ErrorBody{Message: message, Code: code})
}

// Empty returns a 200 envelope with headers only.
func Empty(headers http.Header) Envelope {
	return Envelope{StatusCode: http.StatusOK, Headers: cloneHeaders(headers)}
}

// Text returns an envelope with a plain text body.
func Text(headers http.Header, code int, body string) Envelope {
	h := cloneHeaders(headers)
	h.Set("Content-Type", ContentTypeText)
	return Envelope{StatusCode: code, Headers: h, Body: []byte(body)}
}

// Fallback is the fixed 500 envelope used when a body cannot be encoded.
func Fallback(headers http.Header) Envelope {
	return Text(headers, http.StatusInternalServerError, InternalErrorBody)
}

func build(code int, headers http.Header, body any) Envelope {
	b, err := marshal(body)
	if err != nil {
		return Fallback(headers)
	}
	h := cloneHeaders(headers)
	h.Set("Content-Type", ContentTypeJSON)
	return Envelope{StatusCode: code, Headers: h, Body: b}
}

func cloneHeaders(h http.Header) http.Header {
	if h == nil {
		return make(http.Header)
	}
	return h.Clone()
}

// WriteTo writes the envelope to w.
func (e Envelope) WriteTo(w http.ResponseWriter) error {
	dst := w.Header()
	for k, vs := range e.Headers {
		dst[k] = append([]string(nil), vs...)
	}
	if len(e.Body) > 0 {
		dst.Set("Content-Length", strconv.Itoa(len(e.Body)))
	}
	w.WriteHeader(e.StatusCode)
	if len(e.Body) == 0 {
		return nil
	}
	_, err := w.Write(e.Body)
	return err
}
