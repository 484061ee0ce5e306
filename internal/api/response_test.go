package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSONEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, map[string]string{"call_id": "call-1"})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q, want application/json", ct)
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if env.Error != "" {
		t.Errorf("error = %q, want empty", env.Error)
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data is %T, want map", env.Data)
	}
	if data["call_id"] != "call-1" {
		t.Errorf("call_id = %v", data["call_id"])
	}

	// A successful envelope must not carry an error field at all.
	if strings.Contains(w.Body.String(), `"error"`) {
		t.Errorf("error field present in success body: %s", w.Body.String())
	}
}

func TestWriteJSONStatusAndNilData(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusCreated, nil)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if env.Data != nil {
		t.Errorf("data = %v, want nil", env.Data)
	}
}

func TestWriteErrorEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusNotFound, "call not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if env.Error != "call not found" {
		t.Errorf("error = %q", env.Error)
	}
	if env.Data != nil {
		t.Errorf("data = %v, want nil", env.Data)
	}
}

func TestReadJSONValidBody(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"status":"busy"}`))

	var dst struct {
		Status string `json:"status"`
	}
	if errMsg := readJSON(r, &dst); errMsg != "" {
		t.Fatalf("readJSON: %q", errMsg)
	}
	if dst.Status != "busy" {
		t.Errorf("status = %q, want busy", dst.Status)
	}
}

func TestReadJSONRejectsBadBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string // expected error, or a prefix when wantPrefix is set
	}{
		{"empty body", "", "request body must not be empty"},
		{"malformed json", `{"status":`, "malformed json"},
		{"unknown field", `{"status":"busy","shoe_size":44}`, "unknown field"},
		{"wrong type", `{"status":7}`, `field "status" has the wrong type`},
		{"trailing object", `{"status":"busy"}{"status":"idle"}`, "request body must contain a single json object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var dst struct {
				Status string `json:"status"`
			}
			errMsg := readJSON(r, &dst)
			if !strings.HasPrefix(errMsg, tt.want) {
				t.Errorf("readJSON(%q) = %q, want prefix %q", tt.body, errMsg, tt.want)
			}
		})
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", defaultLimit, 0},
		{"explicit values", "?limit=50&offset=10", 50, 10},
		{"limit clamped to cap", "?limit=500", maxLimit, 0},
		{"zero offset allowed", "?offset=0", defaultLimit, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/calls"+tt.query, nil)

			p, errMsg := parsePagination(r)
			if errMsg != "" {
				t.Fatalf("parsePagination: %q", errMsg)
			}
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("pagination = %+v, want limit %d offset %d", p, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestParsePaginationRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"non-numeric limit", "?limit=lots", "limit must be a positive integer"},
		{"zero limit", "?limit=0", "limit must be a positive integer"},
		{"negative limit", "?limit=-5", "limit must be a positive integer"},
		{"non-numeric offset", "?offset=some", "offset must be a non-negative integer"},
		{"negative offset", "?offset=-1", "offset must be a non-negative integer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/calls"+tt.query, nil)
			if _, errMsg := parsePagination(r); errMsg != tt.want {
				t.Errorf("parsePagination(%q) = %q, want %q", tt.query, errMsg, tt.want)
			}
		})
	}
}

func TestPaginatedResponseShape(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  []string{"call-1", "call-2"},
		Total:  9,
		Limit:  defaultLimit,
		Offset: 0,
	})

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("data is %T, want map", env.Data)
	}
	if data["total"] != float64(9) {
		t.Errorf("total = %v, want 9", data["total"])
	}
	if data["limit"] != float64(defaultLimit) {
		t.Errorf("limit = %v, want %d", data["limit"], defaultLimit)
	}
	items, ok := data["items"].([]any)
	if !ok || len(items) != 2 {
		t.Errorf("items = %v, want 2 entries", data["items"])
	}
}
