package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"soleworks/backend/internal/cache"
	"soleworks/backend/internal/service"
	"soleworks/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded(2)
	svc := service.New(repo, cache.NoopOverviewCache{}, 5*time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*")
}

func doJSON(t *testing.T, handler http.Handler, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

// login returns a bearer token plus a fresh CSRF token for mutating calls.
func login(t *testing.T, handler http.Handler, username, password string) (string, string) {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", "", map[string]string{
		"username": username,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d (%s)", rec.Code, rec.Body.String())
	}
	token, _ := decodeBody(t, rec)["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access token")
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/auth/csrf-token", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token fetch failed: %d", rec.Code)
	}
	csrf, _ := decodeBody(t, rec)["csrf_token"].(string)
	return token, csrf
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decodeBody(t, rec)["ok"] != true {
		t.Fatalf("expected ok:true")
	}
}

func TestRoutesRequireBearerToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/orders", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMutationRequiresCSRFToken(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token, _ := login(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/customers", token, "", map[string]string{"name": "No CSRF"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestStaffCannotManageUsers(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token, _ := login(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/users", token, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff on users route, got %d", rec.Code)
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token, csrf := login(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/customers", token, csrf, map[string]string{
		"name":  "Vanna Sok",
		"phone": "012-777-888",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create customer: %d (%s)", rec.Code, rec.Body.String())
	}
	customer := decodeBody(t, rec)["customer"].(map[string]any)
	customerID := customer["id"].(string)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, csrf, map[string]any{
		"customer_id":      customerID,
		"item_description": "Running shoes",
		"lines": []map[string]any{
			{"description": "Sole replacement", "qty": 2, "unit_price": "250.00"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: %d (%s)", rec.Code, rec.Body.String())
	}
	order := decodeBody(t, rec)["order"].(map[string]any)
	orderID := order["id"].(string)
	if order["total"] != "500.00" {
		t.Fatalf("expected total 500.00, got %v", order["total"])
	}
	if order["status"] != "RECEIVED" {
		t.Fatalf("expected RECEIVED, got %v", order["status"])
	}

	// Delivering before payment and readiness must conflict.
	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/deliver", orderID), token, csrf, map[string]string{})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for premature delivery, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/payments", orderID), token, csrf, map[string]string{
		"amount": "500.00",
		"method": "CASH",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("payment: %d (%s)", rec.Code, rec.Body.String())
	}
	order = decodeBody(t, rec)["order"].(map[string]any)
	if order["payment_status"] != "PAID" {
		t.Fatalf("expected PAID, got %v", order["payment_status"])
	}

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/ready", orderID), token, csrf, map[string]string{})
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/deliver", orderID), token, csrf, map[string]string{})
	if rec.Code != http.StatusOK {
		t.Fatalf("deliver: %d (%s)", rec.Code, rec.Body.String())
	}
	order = decodeBody(t, rec)["order"].(map[string]any)
	if order["status"] != "DELIVERED" {
		t.Fatalf("expected DELIVERED, got %v", order["status"])
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/customers/"+customerID+"/overview", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("overview: %d (%s)", rec.Code, rec.Body.String())
	}
	overview := decodeBody(t, rec)["overview"].(map[string]any)
	if overview["total_spent"] != "500.00" || overview["outstanding"] != "0.00" {
		t.Fatalf("unexpected overview: %v", overview)
	}
}

func TestBodylessReadyAndDeliverAccepted(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token, csrf := login(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/customers", token, csrf, map[string]string{
		"name": "Piseth Nou",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create customer: %d (%s)", rec.Code, rec.Body.String())
	}
	customerID := decodeBody(t, rec)["customer"].(map[string]any)["id"].(string)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, csrf, map[string]any{
		"customer_id":      customerID,
		"item_description": "Hiking boots",
		"lines": []map[string]any{
			{"description": "Stitch repair", "qty": 1, "unit_price": "30.00"},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create order: %d (%s)", rec.Code, rec.Body.String())
	}
	orderID := decodeBody(t, rec)["order"].(map[string]any)["id"].(string)

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/payments", orderID), token, csrf, map[string]string{
		"amount": "30.00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("payment: %d (%s)", rec.Code, rec.Body.String())
	}

	// All fields on these actions are optional; an absent body means {}.
	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/ready", orderID), token, csrf, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("bodyless ready: %d (%s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/deliver", orderID), token, csrf, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("bodyless deliver: %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestValidationAndNotFoundStatuses(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token, csrf := login(t, handler, "staff", "staff123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, csrf, map[string]any{
		"customer_id":      "missing",
		"item_description": "Boots",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown customer, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/does-not-exist", token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAdminCreatesUserOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token, csrf := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/users", token, csrf, map[string]string{
		"username": "counter1",
		"password": "secret1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create user: %d (%s)", rec.Code, rec.Body.String())
	}
	user := decodeBody(t, rec)["user"].(map[string]any)
	if user["role"] != "staff" {
		t.Fatalf("expected default staff role, got %v", user["role"])
	}

	// The new account can log in immediately.
	if tok, _ := login(t, handler, "counter1", "secret1"); tok == "" {
		t.Fatalf("expected new user to log in")
	}
}
