package utils

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSONErrorShape(t *testing.T) {
	rec := httptest.NewRecorder()
	JSONError(rec, 404, "task not found")
	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "task not found" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestDecodeJSONCapsBodySize(t *testing.T) {
	rec := httptest.NewRecorder()
	big := `{"title":"` + strings.Repeat("x", 100) + `"}`
	req := httptest.NewRequest("POST", "/todos", strings.NewReader(big))
	var v struct {
		Title string `json:"title"`
	}
	if err := DecodeJSON(rec, req, &v, 10); err == nil {
		t.Fatalf("expected error for oversized body")
	}

	req = httptest.NewRequest("POST", "/todos", strings.NewReader(`{"title":"a"}`))
	if err := DecodeJSON(rec, req, &v, 1024); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if v.Title != "a" {
		t.Fatalf("unexpected decode: %+v", v)
	}
}

func TestGenIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := GenTaskID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if GenTaskID() == GenUserID() {
		t.Fatalf("task and user ids should not collide")
	}
}
