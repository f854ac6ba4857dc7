package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"offers-function/internal/gateway"
	"offers-function/internal/models"
	"offers-function/internal/service"
	"offers-function/internal/tracing"
	"offers-function/internal/validation"
)

// AdminAuthHeader carries the shared admin secret.
const AdminAuthHeader = "X-Admin-Auth"

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin": "*",
}

var preflightHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
	"Access-Control-Allow-Headers": "Content-Type, " + AdminAuthHeader,
	"Access-Control-Max-Age":       "86400",
}

// Offers is the subset of the service the handler dispatches to.
type Offers interface {
	ListActive(ctx context.Context) ([]models.PublicOffer, error)
	Create(ctx context.Context, offer models.NewOffer) (int64, error)
	CountView(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

var _ Offers = (*service.Service)(nil)

// Handler serves gateway requests for offers.
type Handler struct {
	offers      Offers
	adminSecret string
	log         zerolog.Logger
	tracer      *tracing.Tracer
}

// NewHandler creates a new handler. An empty adminSecret rejects every admin request.
func NewHandler(offers Offers, adminSecret string, log zerolog.Logger) *Handler {
	return &Handler{
		offers:      offers,
		adminSecret: adminSecret,
		log:         log,
		tracer:      tracing.GetTracer(),
	}
}

// Handle processes one gateway request. A non-nil error means the invocation
// failed and no response should be sent to the caller as-is.
func (h *Handler) Handle(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	method := strings.ToUpper(req.HTTPMethod)
	if method == "" {
		method = http.MethodGet
	}

	requestID := req.RequestContext.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := h.log.With().Str("request_id", requestID).Str("method", method).Logger()

	ctx, span := h.tracer.StartInvocation(ctx, method, requestID)
	defer span.End()

	resp, err := h.dispatch(ctx, method, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Msg("invocation failed")
		return gateway.Response{}, fmt.Errorf("offers %s: %w", method, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	log.Debug().Int("status", resp.StatusCode).Msg("invocation completed")
	return resp, nil
}

func (h *Handler) dispatch(ctx context.Context, method string, req gateway.Request) (gateway.Response, error) {
	switch method {
	case http.MethodOptions:
		return gateway.Response{
			StatusCode: http.StatusOK,
			Headers:    copyHeaders(preflightHeaders),
			Body:       "",
		}, nil
	case http.MethodGet:
		return h.listOffers(ctx)
	case http.MethodPost:
		if !h.authorized(req) {
			return h.respondError(http.StatusUnauthorized, "Unauthorized")
		}
		return h.createOffer(ctx, req)
	case http.MethodPut:
		return h.countView(ctx, req)
	case http.MethodDelete:
		if !h.authorized(req) {
			return h.respondError(http.StatusUnauthorized, "Unauthorized")
		}
		return h.deleteOffer(ctx, req)
	default:
		return h.respondError(http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// listOffers handles GET
func (h *Handler) listOffers(ctx context.Context) (gateway.Response, error) {
	offers, err := h.offers.ListActive(ctx)
	if err != nil {
		return gateway.Response{}, err
	}
	return h.respondJSON(http.StatusOK, models.ListOffersResponse{Offers: offers})
}

// createOffer handles POST
func (h *Handler) createOffer(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	body, err := req.DecodedBody()
	if err != nil {
		return h.respondError(http.StatusBadRequest, "invalid request body encoding")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}

	var payload models.CreateOfferRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		return h.respondError(http.StatusBadRequest, "invalid JSON in request body")
	}

	offer, err := validation.ValidateCreateOffer(payload)
	if err != nil {
		return h.respondValidationError(err)
	}

	id, err := h.offers.Create(ctx, offer)
	if err != nil {
		return gateway.Response{}, err
	}

	tracing.SetOfferID(ctx, id)
	return h.respondJSON(http.StatusCreated, models.CreateOfferResponse{
		ID:      id,
		Message: "Offer created",
	})
}

// countView handles PUT ?id=
func (h *Handler) countView(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	id, err := validation.ParseOfferID(req.Query("id"))
	if err != nil {
		return h.respondValidationError(err)
	}

	tracing.SetOfferID(ctx, id)
	if err := h.offers.CountView(ctx, id); err != nil {
		return gateway.Response{}, err
	}

	return h.respondJSON(http.StatusOK, models.MessageResponse{Message: "View counted"})
}

// deleteOffer handles DELETE ?id=
func (h *Handler) deleteOffer(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	id, err := validation.ParseOfferID(req.Query("id"))
	if err != nil {
		return h.respondValidationError(err)
	}

	tracing.SetOfferID(ctx, id)
	if err := h.offers.Delete(ctx, id); err != nil {
		return gateway.Response{}, err
	}

	return h.respondJSON(http.StatusOK, models.MessageResponse{Message: "Offer deleted"})
}

func (h *Handler) authorized(req gateway.Request) bool {
	if h.adminSecret == "" {
		return false
	}
	got := req.Header(AdminAuthHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.adminSecret)) == 1
}

// respondJSON builds a JSON response with the CORS header.
func (h *Handler) respondJSON(status int, data interface{}) (gateway.Response, error) {
	return gateway.JSON(status, corsHeaders, data)
}

// respondError builds an error response with the given status code and message.
func (h *Handler) respondError(status int, message string) (gateway.Response, error) {
	return h.respondJSON(status, models.ErrorResponse{Error: message})
}

func (h *Handler) respondValidationError(err error) (gateway.Response, error) {
	var vErr *validation.ValidationError
	if errors.As(err, &vErr) {
		return h.respondError(http.StatusBadRequest, vErr.Field+" "+vErr.Message)
	}
	return h.respondError(http.StatusBadRequest, err.Error())
}

func copyHeaders(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
