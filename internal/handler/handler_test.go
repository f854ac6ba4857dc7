package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"offers-function/internal/database"
	"offers-function/internal/gateway"
	"offers-function/internal/models"
	"offers-function/internal/service"
)

const testSecret = "test-admin-secret"

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()

	db, err := database.NewDB(context.Background(), filepath.Join(t.TempDir(), "handler_test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	svc := service.NewService(service.FromDB(db), service.Options{Log: zerolog.Nop()})
	return NewHandler(svc, testSecret, zerolog.Nop())
}

func invoke(t *testing.T, h *Handler, req gateway.Request) gateway.Response {
	t.Helper()

	resp, err := h.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp.Headers["Access-Control-Allow-Origin"] != "*" {
		t.Errorf("Expected CORS origin header on every response, got %v", resp.Headers)
	}
	if resp.IsBase64Encoded {
		t.Error("Expected plain response body")
	}
	return resp
}

func createRequest(t *testing.T, title string) gateway.Request {
	t.Helper()

	body, _ := json.Marshal(map[string]string{
		"title":         title,
		"description":   "Subscribe to the channel",
		"reward":        "100 RUB",
		"telegram_link": "https://t.me/" + title,
	})
	return gateway.Request{
		HTTPMethod: http.MethodPost,
		Headers:    map[string]string{"X-Admin-Auth": testSecret},
		Body:       string(body),
	}
}

func createOffer(t *testing.T, h *Handler, title string) int64 {
	t.Helper()

	resp := invoke(t, h, createRequest(t, title))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", resp.StatusCode, resp.Body)
	}

	var created models.CreateOfferResponse
	if err := json.Unmarshal([]byte(resp.Body), &created); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if created.Message != "Offer created" {
		t.Errorf("Unexpected message %q", created.Message)
	}
	return created.ID
}

func listOffers(t *testing.T, h *Handler) []models.PublicOffer {
	t.Helper()

	resp := invoke(t, h, gateway.Request{HTTPMethod: http.MethodGet})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if resp.Headers["Content-Type"] != "application/json" {
		t.Errorf("Expected JSON content type, got %q", resp.Headers["Content-Type"])
	}

	var list models.ListOffersResponse
	if err := json.Unmarshal([]byte(resp.Body), &list); err != nil {
		t.Fatalf("Failed to unmarshal listing: %v", err)
	}
	return list.Offers
}

func decodeError(t *testing.T, resp gateway.Response) string {
	t.Helper()

	var e models.ErrorResponse
	if err := json.Unmarshal([]byte(resp.Body), &e); err != nil {
		t.Fatalf("Failed to unmarshal error response: %v", err)
	}
	return e.Error
}

func TestOptions(t *testing.T) {
	h := setupTestHandler(t)

	resp := invoke(t, h, gateway.Request{HTTPMethod: http.MethodOptions})

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if resp.Body != "" {
		t.Errorf("Expected empty body, got %q", resp.Body)
	}
	want := map[string]string{
		"Access-Control-Allow-Methods": "GET, POST, PUT, DELETE, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type, X-Admin-Auth",
		"Access-Control-Max-Age":       "86400",
	}
	for k, v := range want {
		if resp.Headers[k] != v {
			t.Errorf("Header %s: expected %q, got %q", k, v, resp.Headers[k])
		}
	}
}

func TestList_Empty(t *testing.T) {
	h := setupTestHandler(t)

	resp := invoke(t, h, gateway.Request{HTTPMethod: http.MethodGet})
	if resp.Body != `{"offers":[]}` {
		t.Errorf("Expected empty offers array, got %s", resp.Body)
	}
}

func TestEmptyMethodDefaultsToGet(t *testing.T) {
	h := setupTestHandler(t)

	resp := invoke(t, h, gateway.Request{})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestCreateOffer_AppearsInListing(t *testing.T) {
	h := setupTestHandler(t)

	id := createOffer(t, h, "first")

	offers := listOffers(t, h)
	if len(offers) != 1 {
		t.Fatalf("Expected 1 offer, got %d", len(offers))
	}
	got := offers[0]
	if got.ID != id || got.Title != "first" || got.Reward != "100 RUB" || got.TelegramLink != "https://t.me/first" {
		t.Errorf("Unexpected offer %+v", got)
	}
	if got.ViewsCount != 0 {
		t.Errorf("Expected views_count 0, got %d", got.ViewsCount)
	}
	if got.CreatedAt == nil {
		t.Error("Expected created_at to be set")
	}
}

func TestCreateOffer_NumericRewardAndLowercaseHeader(t *testing.T) {
	h := setupTestHandler(t)

	resp := invoke(t, h, gateway.Request{
		HTTPMethod: "post",
		Headers:    map[string]string{"x-admin-auth": testSecret},
		Body:       `{"title":"t","description":"d","reward":150,"telegram_link":"https://t.me/x"}`,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d. Body: %s", resp.StatusCode, resp.Body)
	}

	offers := listOffers(t, h)
	if len(offers) != 1 || offers[0].Reward != "150" {
		t.Errorf("Expected numeric reward stored as text, got %+v", offers)
	}
}

func TestCreateOffer_Base64Body(t *testing.T) {
	h := setupTestHandler(t)

	req := createRequest(t, "encoded")
	req.Body = base64.StdEncoding.EncodeToString([]byte(req.Body))
	req.IsBase64Encoded = true

	resp := invoke(t, h, req)
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("Expected status 201, got %d. Body: %s", resp.StatusCode, resp.Body)
	}
}

func TestCreateOffer_BadRequests(t *testing.T) {
	h := setupTestHandler(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "invalid json", body: "invalid json", want: "invalid JSON in request body"},
		{name: "empty body", body: "", want: "title is required"},
		{name: "missing description", body: `{"title":"t","reward":"1","telegram_link":"l"}`, want: "description is required"},
		{name: "boolean reward", body: `{"title":"t","description":"d","reward":true,"telegram_link":"l"}`, want: "invalid JSON in request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := invoke(t, h, gateway.Request{
				HTTPMethod: http.MethodPost,
				Headers:    map[string]string{"X-Admin-Auth": testSecret},
				Body:       tt.body,
			})
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", resp.StatusCode)
			}
			if got := decodeError(t, resp); got != tt.want {
				t.Errorf("Expected error %q, got %q", tt.want, got)
			}
		})
	}

	if offers := listOffers(t, h); len(offers) != 0 {
		t.Errorf("Expected no offers after bad requests, got %d", len(offers))
	}
}

func TestAdminMethods_Unauthorized(t *testing.T) {
	h := setupTestHandler(t)
	id := createOffer(t, h, "protected")

	tests := []struct {
		name    string
		method  string
		headers map[string]string
	}{
		{name: "post without header", method: http.MethodPost},
		{name: "post wrong secret", method: http.MethodPost, headers: map[string]string{"X-Admin-Auth": "admin123"}},
		{name: "delete without header", method: http.MethodDelete},
		{name: "delete wrong secret", method: http.MethodDelete, headers: map[string]string{"x-admin-auth": "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := createRequest(t, "intruder")
			req.HTTPMethod = tt.method
			req.Headers = tt.headers
			req.QueryStringParameters = map[string]string{"id": strconv.FormatInt(id, 10)}

			resp := invoke(t, h, req)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("Expected status 401, got %d", resp.StatusCode)
			}
			if got := decodeError(t, resp); got != "Unauthorized" {
				t.Errorf("Expected 'Unauthorized', got %q", got)
			}
		})
	}

	offers := listOffers(t, h)
	if len(offers) != 1 || offers[0].ID != id {
		t.Errorf("Expected unauthorized requests not to mutate, got %+v", offers)
	}
}

func TestEmptySecretRejectsAdmin(t *testing.T) {
	h := setupTestHandler(t)
	h.adminSecret = ""

	req := createRequest(t, "x")
	req.Headers = map[string]string{"X-Admin-Auth": ""}

	resp := invoke(t, h, req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", resp.StatusCode)
	}
}

func TestCountView(t *testing.T) {
	h := setupTestHandler(t)
	id := createOffer(t, h, "viewed")

	for i := 0; i < 3; i++ {
		resp := invoke(t, h, gateway.Request{
			HTTPMethod:            http.MethodPut,
			QueryStringParameters: map[string]string{"id": strconv.FormatInt(id, 10)},
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", resp.StatusCode)
		}
		if resp.Body != `{"message":"View counted"}` {
			t.Errorf("Unexpected body %s", resp.Body)
		}
	}

	offers := listOffers(t, h)
	if offers[0].ViewsCount != 3 {
		t.Errorf("Expected views_count 3, got %d", offers[0].ViewsCount)
	}
}

func TestCountView_Concurrent(t *testing.T) {
	h := setupTestHandler(t)
	id := createOffer(t, h, "hot")

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := h.Handle(context.Background(), gateway.Request{
				HTTPMethod:            http.MethodPut,
				QueryStringParameters: map[string]string{"id": strconv.FormatInt(id, 10)},
			})
			if err != nil || resp.StatusCode != http.StatusOK {
				t.Errorf("Concurrent PUT failed: status %d, err %v", resp.StatusCode, err)
			}
		}()
	}
	wg.Wait()

	offers := listOffers(t, h)
	if offers[0].ViewsCount != n {
		t.Errorf("Expected views_count %d, got %d", n, offers[0].ViewsCount)
	}
}

func TestCountView_InvalidID(t *testing.T) {
	h := setupTestHandler(t)

	tests := []struct {
		name   string
		params map[string]string
		want   string
	}{
		{name: "missing", params: nil, want: "id is required"},
		{name: "not a number", params: map[string]string{"id": "abc"}, want: "id must be a positive integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := invoke(t, h, gateway.Request{
				HTTPMethod:            http.MethodPut,
				QueryStringParameters: tt.params,
			})
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", resp.StatusCode)
			}
			if got := decodeError(t, resp); got != tt.want {
				t.Errorf("Expected error %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDeleteOffer_SoftDeletes(t *testing.T) {
	h := setupTestHandler(t)
	keep := createOffer(t, h, "keep")
	drop := createOffer(t, h, "drop")

	invoke(t, h, gateway.Request{
		HTTPMethod:            http.MethodPut,
		QueryStringParameters: map[string]string{"id": strconv.FormatInt(drop, 10)},
	})

	for i := 0; i < 2; i++ {
		resp := invoke(t, h, gateway.Request{
			HTTPMethod:            http.MethodDelete,
			Headers:               map[string]string{"X-Admin-Auth": testSecret},
			QueryStringParameters: map[string]string{"id": strconv.FormatInt(drop, 10)},
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Expected status 200, got %d", resp.StatusCode)
		}
		if resp.Body != `{"message":"Offer deleted"}` {
			t.Errorf("Unexpected body %s", resp.Body)
		}
	}

	offers := listOffers(t, h)
	if len(offers) != 1 || offers[0].ID != keep {
		t.Errorf("Expected only offer %d to remain listed, got %+v", keep, offers)
	}

	// The row stays behind: counting a view on it still succeeds but it stays hidden.
	resp := invoke(t, h, gateway.Request{
		HTTPMethod:            http.MethodPut,
		QueryStringParameters: map[string]string{"id": strconv.FormatInt(drop, 10)},
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200 for view on deleted offer, got %d", resp.StatusCode)
	}
	if offers := listOffers(t, h); len(offers) != 1 {
		t.Errorf("Expected deleted offer to stay hidden, got %+v", offers)
	}
}

func TestDeleteOffer_MissingID(t *testing.T) {
	h := setupTestHandler(t)

	resp := invoke(t, h, gateway.Request{
		HTTPMethod: http.MethodDelete,
		Headers:    map[string]string{"X-Admin-Auth": testSecret},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := setupTestHandler(t)

	for _, method := range []string{http.MethodPatch, http.MethodHead, "PURGE"} {
		resp := invoke(t, h, gateway.Request{HTTPMethod: method})
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected status 405, got %d", method, resp.StatusCode)
		}
		if got := decodeError(t, resp); got != "Method not allowed" {
			t.Errorf("%s: expected 'Method not allowed', got %q", method, got)
		}
	}
}

// stubOffers fails every call and records whether it was reached.
type stubOffers struct {
	calls int
	err   error
}

func (s *stubOffers) ListActive(context.Context) ([]models.PublicOffer, error) {
	s.calls++
	return nil, s.err
}

func (s *stubOffers) Create(context.Context, models.NewOffer) (int64, error) {
	s.calls++
	return 0, s.err
}

func (s *stubOffers) CountView(context.Context, int64) error {
	s.calls++
	return s.err
}

func (s *stubOffers) Delete(context.Context, int64) error {
	s.calls++
	return s.err
}

func TestStoreErrorFailsInvocation(t *testing.T) {
	storeErr := errors.New("connection refused")
	stub := &stubOffers{err: storeErr}
	h := NewHandler(stub, testSecret, zerolog.Nop())

	requests := []gateway.Request{
		{HTTPMethod: http.MethodGet},
		createRequest(t, "x"),
		{HTTPMethod: http.MethodPut, QueryStringParameters: map[string]string{"id": "1"}},
		{HTTPMethod: http.MethodDelete, Headers: map[string]string{"X-Admin-Auth": testSecret}, QueryStringParameters: map[string]string{"id": "1"}},
	}

	for _, req := range requests {
		resp, err := h.Handle(context.Background(), req)
		if !errors.Is(err, storeErr) {
			t.Errorf("%s: expected store error, got %v", req.HTTPMethod, err)
		}
		if resp.StatusCode != 0 {
			t.Errorf("%s: expected no response, got status %d", req.HTTPMethod, resp.StatusCode)
		}
	}
	if stub.calls != len(requests) {
		t.Errorf("Expected %d store calls, got %d", len(requests), stub.calls)
	}
}

func TestUnauthorizedSkipsStore(t *testing.T) {
	stub := &stubOffers{}
	h := NewHandler(stub, testSecret, zerolog.Nop())

	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		resp, err := h.Handle(context.Background(), gateway.Request{
			HTTPMethod:            method,
			QueryStringParameters: map[string]string{"id": "1"},
			Body:                  `{"title":"t","description":"d","reward":"1","telegram_link":"l"}`,
		})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", method, resp.StatusCode)
		}
	}
	if stub.calls != 0 {
		t.Errorf("Expected no store calls, got %d", stub.calls)
	}
}
