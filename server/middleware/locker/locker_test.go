package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func ok(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func TestCheckBouncesWhileBusy(t *testing.T) {
	busy := true
	l := New(func() bool { return busy })
	h := l.Check(http.HandlerFunc(ok))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health-check", nil))
	if rec.Code != http.StatusLocked {
		t.Errorf("busy locker let a request through, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lock", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("lock route must never be protected, got %d", rec.Code)
	}

	busy = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health-check", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("idle locker bounced a request, got %d", rec.Code)
	}
}

func TestManualLockOverHTTP(t *testing.T) {
	l := New(nil)
	rec := httptest.NewRecorder()
	l.HTTPSet(rec, httptest.NewRequest(http.MethodPost, "/lock", strings.NewReader(`{"bool":true}`)))
	if !l.Locked() {
		t.Fatal("POST {bool:true} did not lock")
	}
	rec = httptest.NewRecorder()
	l.HTTPGet(rec, httptest.NewRequest(http.MethodGet, "/lock", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != `{"bool":true}` {
		t.Errorf("GET /lock = %s", got)
	}
	l.Unlock()
	if l.Locked() {
		t.Error("Unlock did not unlock")
	}
	rec = httptest.NewRecorder()
	l.HTTPSet(rec, httptest.NewRequest(http.MethodPost, "/lock", strings.NewReader(`nope`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body should be a 400, got %d", rec.Code)
	}
}

func TestCheckHeldIgnoresBusy(t *testing.T) {
	l := New(func() bool { return true })
	h := l.CheckHeld(http.HandlerFunc(ok))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/start-test", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("busy alone should not bounce a held-only route, got %d", rec.Code)
	}

	l.Lock()
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/start-test", nil))
	if rec.Code != http.StatusLocked {
		t.Errorf("operator lock should bounce a held-only route, got %d", rec.Code)
	}
}
