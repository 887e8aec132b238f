package httputil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	if err := WriteJSON(rec, http.StatusCreated, map[string]float64{"total_deg": 120}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp map[string]float64
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["total_deg"] != 120 {
		t.Errorf("total_deg = %v, want 120", resp["total_deg"])
	}
}

func TestWriteJSON_Unencodable(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	if err := WriteJSON(rec, http.StatusOK, map[string]any{"c": make(chan int)}); err == nil {
		t.Error("expected an encoding error")
	}
}

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		write  func(http.ResponseWriter, string) error
		status int
	}{
		{"BadRequest", BadRequest, http.StatusBadRequest},
		{"NotFound", NotFound, http.StatusNotFound},
		{"Unprocessable", Unprocessable, http.StatusUnprocessableEntity},
		{"InternalServerError", InternalServerError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			if err := tt.write(rec, "test error"); err != nil {
				t.Fatal(err)
			}
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}

			var body ErrorBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body.Error != "test error" {
				t.Errorf("error = %q, want 'test error'", body.Error)
			}
		})
	}
}

func TestDecodeError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error body", http.StatusNotFound, `{"error":"trial not found: x"}`, "trial not found: x"},
		{"plain text", http.StatusBadGateway, "upstream down", "Bad Gateway"},
		{"empty error", http.StatusConflict, `{"error":""}`, "Conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp := &http.Response{StatusCode: tt.status, Body: io.NopCloser(strings.NewReader(tt.body))}
			if got := DecodeError(resp); got != tt.want {
				t.Errorf("DecodeError() = %q, want %q", got, tt.want)
			}
		})
	}
}
