// Package locker provides an HTTP middleware which allows an HTTPHandler to be locked, returning 423 (locked)
package locker

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// BoolT is the JSON payload of the lock routes, {"bool": value}
type BoolT struct {
	Bool bool `json:"bool"`
}

// Locker is a type which behaves like a sync.Mutex without the blocking.
// It is locked while an operator holds it or while its busy func reports
// true, e.g. while a sweep owns the hardware.
type Locker struct {
	mu     sync.Mutex
	manual bool
	busy   func() bool

	// DoNotProtect is a list of paths not to apply the lock to
	DoNotProtect []string
}

// New returns a new Locker with DoNotProtect prepopulated with "lock".
// busy may be nil
func New(busy func() bool) *Locker {
	return &Locker{busy: busy, DoNotProtect: []string{"lock"}}
}

// Lock the locker
func (l *Locker) Lock() {
	l.mu.Lock()
	l.manual = true
	l.mu.Unlock()
}

// Unlock the locker.  It stays locked while busy
func (l *Locker) Unlock() {
	l.mu.Lock()
	l.manual = false
	l.mu.Unlock()
}

// Locked returns true if the locker is locked
func (l *Locker) Locked() bool {
	return l.Held() || (l.busy != nil && l.busy())
}

// Held returns true if an operator holds the lock, regardless of busy
func (l *Locker) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.manual
}

// Check is an HTTP middleware that returns http.StatusLocked if Locked() is true, otherwise passes down the line
func (l *Locker) Check(next http.Handler) http.Handler {
	return l.bounce(next, l.Locked)
}

// CheckHeld is like Check, but only bounces requests while an operator
// holds the lock.  It is for routes that arbitrate busy themselves
func (l *Locker) CheckHeld(next http.Handler) http.Handler {
	return l.bounce(next, l.Held)
}

func (l *Locker) bounce(next http.Handler, locked func() bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if locked() {
			protected := true
			for _, str := range l.DoNotProtect {
				if strings.Contains(r.URL.Path, str) {
					protected = false
				}
			}
			if protected {
				http.Error(w, "resource is locked", http.StatusLocked)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSet calls Lock or Unlock based on json:bool on the request body
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	b := BoolT{}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.Bool {
		l.Lock()
	} else {
		l.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPGet returns Locked() over HTTP as JSON
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(BoolT{Bool: l.Locked()}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
