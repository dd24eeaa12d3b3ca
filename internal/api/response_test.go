package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return resp
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]string{"hello": "world"})

	if rec.Code != 200 {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %s", ct)
	}

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Error("Expected success true")
	}
	if resp.Data.(map[string]any)["hello"] != "world" {
		t.Errorf("Unexpected data: %v", resp.Data)
	}
}

func TestCreated(t *testing.T) {
	rec := httptest.NewRecorder()
	Created(rec, nil)

	if rec.Code != 201 {
		t.Errorf("Expected status 201, got %d", rec.Code)
	}
	if !decodeResponse(t, rec).Success {
		t.Error("Expected success true")
	}
}

func TestNoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	NoContent(rec)

	if rec.Code != 204 {
		t.Errorf("Expected status 204, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Error("Expected empty body")
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name string
		fn   func(w *httptest.ResponseRecorder)
		code int
		want string
	}{
		{"bad request", func(w *httptest.ResponseRecorder) { BadRequest(w, "nope") }, 400, "BAD_REQUEST"},
		{"not found", func(w *httptest.ResponseRecorder) { NotFound(w, "missing") }, 404, "NOT_FOUND"},
		{"conflict", func(w *httptest.ResponseRecorder) { Conflict(w, "taken") }, 409, "CONFLICT"},
		{"internal", func(w *httptest.ResponseRecorder) { InternalError(w, "boom") }, 500, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.fn(rec)

			if rec.Code != tt.code {
				t.Errorf("Expected status %d, got %d", tt.code, rec.Code)
			}
			resp := decodeResponse(t, rec)
			if resp.Success {
				t.Error("Expected success false")
			}
			if resp.Error == nil || resp.Error.Code != tt.want {
				t.Errorf("Expected error code %s, got %+v", tt.want, resp.Error)
			}
		})
	}
}

func TestValidationErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationErrorResponse(rec, ValidationErrors{
		{Field: "name", Message: "required"},
	})

	if rec.Code != 400 {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("Expected VALIDATION_ERROR, got %+v", resp.Error)
	}
	if len(resp.Error.Details) != 1 || resp.Error.Details[0].Field != "name" {
		t.Errorf("Details not carried: %+v", resp.Error.Details)
	}
}

func TestList_Meta(t *testing.T) {
	rec := httptest.NewRecorder()
	List(rec, []int{1, 2, 3}, 3, 10)

	resp := decodeResponse(t, rec)
	if resp.Meta == nil || resp.Meta.Total != 3 || resp.Meta.Limit != 10 {
		t.Errorf("Unexpected meta: %+v", resp.Meta)
	}
}
