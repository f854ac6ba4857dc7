// Package gateway defines the event shapes exchanged with the hosting HTTP
// gateway and adapters between those events and net/http.
package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Request is the event delivered by the gateway for one HTTP call.
type Request struct {
	HTTPMethod            string            `json:"httpMethod"`
	Headers               map[string]string `json:"headers"`
	QueryStringParameters map[string]string `json:"queryStringParameters"`
	Body                  string            `json:"body"`
	IsBase64Encoded       bool              `json:"isBase64Encoded"`
	RequestContext        RequestContext    `json:"requestContext"`
}

// RequestContext carries gateway metadata.
type RequestContext struct {
	RequestID string `json:"requestId"`
}

// Response is returned to the gateway.
type Response struct {
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	Body            string            `json:"body"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
}

// Header returns the value of the named header, matching names case-insensitively.
func (r Request) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Query returns a query string parameter or "".
func (r Request) Query(name string) string {
	return r.QueryStringParameters[name]
}

// DecodedBody returns the body, decoding base64 when the gateway flagged it.
func (r Request) DecodedBody() ([]byte, error) {
	if !r.IsBase64Encoded {
		return []byte(r.Body), nil
	}
	data, err := base64.StdEncoding.DecodeString(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 body: %w", err)
	}
	return data, nil
}

// JSON builds a response with a JSON-encoded body.
func JSON(status int, headers map[string]string, v interface{}) (Response, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Response{}, fmt.Errorf("failed to encode response body: %w", err)
	}
	h := make(map[string]string, len(headers)+1)
	for k, val := range headers {
		h[k] = val
	}
	h["Content-Type"] = "application/json"
	return Response{
		StatusCode: status,
		Headers:    h,
		Body:       string(data),
	}, nil
}

// FromHTTP converts an incoming HTTP request into a gateway event.
// The body is read up to maxBodySize bytes.
func FromHTTP(r *http.Request, maxBodySize int64) (Request, error) {
	req := Request{
		HTTPMethod:            r.Method,
		Headers:               make(map[string]string, len(r.Header)),
		QueryStringParameters: make(map[string]string),
	}

	for name, values := range r.Header {
		req.Headers[name] = strings.Join(values, ",")
	}
	for name, values := range r.URL.Query() {
		if len(values) > 0 {
			req.QueryStringParameters[name] = values[0]
		}
	}

	if r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
		if err != nil {
			return Request{}, fmt.Errorf("failed to read request body: %w", err)
		}
		if int64(len(body)) > maxBodySize {
			return Request{}, ErrBodyTooLarge
		}
		req.Body = string(body)
	}

	return req, nil
}

// ErrBodyTooLarge is returned by FromHTTP when the body exceeds the limit.
var ErrBodyTooLarge = errors.New("gateway: request body too large")

// WriteHTTP writes a gateway response to w.
func WriteHTTP(w http.ResponseWriter, resp Response) error {
	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to decode base64 response: %w", err)
		}
		body = decoded
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, err := w.Write(body)
	return err
}
