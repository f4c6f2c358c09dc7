package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLive_AlwaysReturns200(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	rec := httptest.NewRecorder()
	r.live(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestReady_NoProbes(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	rec := httptest.NewRecorder()
	r.ready(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReady_AllProbesPass(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Add("store", func(context.Context) error { return nil })
	r.Add("device", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	r.ready(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Probes["store"] != "ok" || body.Probes["device"] != "ok" {
		t.Errorf("probes = %v, want all ok", body.Probes)
	}
}

func TestReady_FailingProbe(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Add("store", func(context.Context) error { return errors.New("database is locked") })
	r.Add("device", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	r.ready(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want fail", body.Status)
	}
	if body.Probes["store"] != "fail: database is locked" {
		t.Errorf("store probe = %q, want failure detail", body.Probes["store"])
	}
	if body.Probes["device"] != "ok" {
		t.Errorf("device probe = %q, want ok", body.Probes["device"])
	}
}

func TestRoutes_ServesBothEndpoints(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Add("store", func(context.Context) error { return nil })
	mux := http.NewServeMux()
	r.Routes(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}
