package errmodel

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewAndFrom(t *testing.T) {
	e := Checker("rule_violation", "rule 3 violated", map[string]any{"rules": []int{3}})
	if e.Category != CategoryChecker || e.Code != "rule_violation" {
		t.Fatalf("unexpected: %#v", e)
	}
	if got := From(e); got != e {
		t.Fatalf("From should return same error instance")
	}
}

func TestRetryable(t *testing.T) {
	if !IsRetryable(Validation("rejected", "checker rejected output", nil)) {
		t.Fatal("validation rejection should be retryable")
	}
	if !IsRetryable(New(CategoryNetwork, "timeout", "call timed out", nil)) {
		t.Fatal("network errors should be retryable")
	}
	if IsRetryable(Policy("forbidden", "operation not allowed", nil)) {
		t.Fatal("policy errors are permanent")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatal("plain errors default to permanent system errors")
	}
	if !IsRetryable(Transient(errors.New("flaky backend"))) {
		t.Fatal("Transient should mark any error retryable")
	}
}

func TestWriteHTTP_StatusAndEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	WriteHTTP(rr, req, Validation("bad_json", "oops", nil))
	if rr.Code != 400 {
		t.Fatalf("status=%d want 400", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "\"category\":\"validation\"") {
		t.Fatalf("body missing category: %s", body)
	}
	if !strings.Contains(body, "\"code\":\"bad_json\"") {
		t.Fatalf("body missing code: %s", body)
	}
}
