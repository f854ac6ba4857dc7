package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

// Func is a function invoked once per gateway request.
type Func func(ctx context.Context, req Request) (Response, error)

// HTTPHandler serves a Func over plain net/http, the way the hosting gateway
// would invoke it. Invocation failures become a bare 500.
type HTTPHandler struct {
	fn          Func
	maxBodySize int64
	log         zerolog.Logger
}

// NewHTTPHandler wraps fn for net/http.
func NewHTTPHandler(fn Func, maxBodySize int64, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{fn: fn, maxBodySize: maxBodySize, log: log}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := FromHTTP(r, h.maxBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, http.StatusText(status), status)
		return
	}
	if id := r.Header.Get("X-Request-Id"); id != "" {
		req.RequestContext.RequestID = id
	}

	resp, err := h.fn(r.Context(), req)
	if err != nil {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := WriteHTTP(w, resp); err != nil {
		h.log.Error().Err(err).Msg("failed to write response")
	}
}
