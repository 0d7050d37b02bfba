// Package server is the HTTP status surface of the bench.
//
// The dashboard starts and stops sweeps, polls their status and downloads the
// report; routes that touch hardware outside a sweep are fenced off by a
// locker while one runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/emc-lab/emcbench/fault"
	"github.com/emc-lab/emcbench/report"
	"github.com/emc-lab/emcbench/server/middleware/locker"
	"github.com/emc-lab/emcbench/session"
)

// DefaultOrigins are the dashboard dev servers allowed by CORS
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// Sweeper is the slice of a session the HTTP surface needs
type Sweeper interface {
	Start() (string, error)
	Stop() bool
	Status() session.Status
	Results() ([]report.Row, error)
	Artifact() string
	Active() bool
	Health(ctx context.Context) ([]session.Check, error)
}

// Message is the body of every non-data reply
type Message struct {
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

// Route is a method and a path
type Route struct {
	Method string
	Path   string
}

func (r Route) String() string { return r.Method + " " + r.Path }

// RouteTable maps routes to handlers
type RouteTable map[Route]http.HandlerFunc

// Endpoints lists the routes in the table, sorted
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for k := range rt {
		routes = append(routes, k.String())
	}
	sort.Strings(routes)
	return routes
}

// Bind binds every route of the table to r
func (rt RouteTable) Bind(r chi.Router) {
	for k, v := range rt {
		r.MethodFunc(k.Method, k.Path, v)
	}
}

// Server holds what the routes act on.  Gatherer may be nil, in which case
// the metrics route is not served
type Server struct {
	Sweeper  Sweeper
	Link     report.Link
	Gatherer prometheus.Gatherer
	Origins  []string
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	origins := s.Origins
	if len(origins) == 0 {
		origins = DefaultOrigins
	}
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	root.Use(middleware.Recoverer)
	root.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	// an operator lock fences every route that drives hardware; the busy
	// half only applies to routes that do not arbitrate the slot themselves
	lock := locker.New(s.Sweeper.Active)
	open := RouteTable{
		{http.MethodPost, "/stop-test"}:    s.stop,
		{http.MethodGet, "/check-status"}:  s.status,
		{http.MethodGet, "/download-data"}: s.download,
		{http.MethodGet, "/sensitivity"}:   s.sensitivity,
		{http.MethodGet, "/lock"}:          lock.HTTPGet,
		{http.MethodPost, "/lock"}:         lock.HTTPSet,
	}
	held := RouteTable{
		{http.MethodPost, "/start-test"}: s.start,
	}
	fenced := RouteTable{
		{http.MethodGet, "/health-check"}:  s.health,
		{http.MethodPost, "/health-check"}: s.health,
	}
	open.Bind(root)
	root.Group(func(r chi.Router) {
		r.Use(lock.CheckHeld)
		held.Bind(r)
	})
	root.Group(func(r chi.Router) {
		r.Use(lock.Check)
		fenced.Bind(r)
	})

	endpoints := append(open.Endpoints(), held.Endpoints()...)
	endpoints = append(endpoints, fenced.Endpoints()...)
	if s.Gatherer != nil {
		root.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
		endpoints = append(endpoints, "GET /metrics")
	}
	endpoints = append(endpoints, "GET /endpoints")
	sort.Strings(endpoints)
	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, endpoints)
	})
	return root
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	id, err := s.Sweeper.Start()
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, Message{Message: "test started in the background", RunID: id})
	case errors.Is(err, session.ErrConflict):
		writeJSON(w, http.StatusConflict, Message{Message: "a test is already running"})
	case errors.Is(err, fault.ErrUsage):
		writeJSON(w, http.StatusBadRequest, Message{Message: err.Error()})
	case errors.Is(err, fault.ErrConfiguration):
		writeJSON(w, http.StatusServiceUnavailable, Message{Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, Message{Message: err.Error()})
	}
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if !s.Sweeper.Stop() {
		writeJSON(w, http.StatusOK, Message{Message: "no test is currently running"})
		return
	}
	writeJSON(w, http.StatusOK, Message{Message: "stop signal sent"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sweeper.Status())
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	ReplyWithFile(w, r, s.Sweeper.Artifact())
}

func (s *Server) sensitivity(w http.ResponseWriter, r *http.Request) {
	link := s.Link
	q := r.URL.Query()
	for key, dst := range map[string]*float64{
		"freq_mhz":   &link.FreqMHz,
		"distance_m": &link.DistanceM,
		"wire_loss":  &link.WireLoss,
		"ant_factor": &link.AntFactor,
	} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Message{Message: "invalid " + key + ": " + v})
			return
		}
		*dst = f
	}
	rows, err := s.Sweeper.Results()
	if err != nil {
		if errors.Is(err, report.ErrNoReport) {
			writeJSON(w, http.StatusNotFound, Message{Message: "no results"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, Message{Message: err.Error()})
		return
	}
	out, ok := link.Convert(rows)
	if !ok {
		writeJSON(w, http.StatusBadRequest, Message{Message: "frequency and distance must be positive"})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HealthReport is the reply of the health check
type HealthReport struct {
	OK     bool            `json:"ok"`
	Checks []session.Check `json:"checks"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	checks, err := s.Sweeper.Health(r.Context())
	switch {
	case errors.Is(err, session.ErrConflict):
		writeJSON(w, http.StatusConflict, Message{Message: "a test is already running"})
		return
	case err != nil:
		writeJSON(w, http.StatusServiceUnavailable, Message{Message: err.Error()})
		return
	}
	rep := HealthReport{OK: true, Checks: checks}
	for _, c := range rep.Checks {
		rep.OK = rep.OK && c.OK()
	}
	code := http.StatusOK
	if !rep.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// ReplyWithFile serves the file at path, or a 404 message if there is none
func ReplyWithFile(w http.ResponseWriter, r *http.Request, path string) {
	if path == "" {
		writeJSON(w, http.StatusNotFound, Message{Message: "no results"})
		return
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusNotFound, Message{Message: "no results"})
			return
		}
		log.WithField("component", "server").Errorf("opening %s: %v", path, err)
		writeJSON(w, http.StatusInternalServerError, Message{Message: err.Error()})
		return
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Message{Message: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	http.ServeContent(w, r, filepath.Base(path), stat.ModTime(), f)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("component", "server").Errorf("encoding reply: %v", err)
	}
}
