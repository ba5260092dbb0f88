package server

import (
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/jobrunner/internal/common/apierrors"
	"github.com/G-Research/jobrunner/internal/common/health"
	"github.com/G-Research/jobrunner/internal/common/logging"
	"github.com/G-Research/jobrunner/internal/common/requestid"
	"github.com/G-Research/jobrunner/internal/common/util"
	"github.com/G-Research/jobrunner/internal/jobrunner/configuration"
	"github.com/G-Research/jobrunner/internal/jobrunner/engine"
	"github.com/G-Research/jobrunner/internal/jobrunner/jobdb"
)

// JobService is the part of the engine exposed over http.
type JobService interface {
	Submit(req engine.SubmitRequest) (*engine.SubmitResponse, error)
	Status(id string) (*jobdb.Job, error)
	List() ([]*jobdb.Job, error)
	Stats() (engine.Stats, error)
}

// Server serves the jobs api and the fixed load target endpoints.
type Server struct {
	jobs       JobService
	loadTarget configuration.LoadTargetConfig
	clock      util.Clock
	rand       *rand.Rand
	log        *log.Entry
}

func NewServer(jobs JobService, loadTarget configuration.LoadTargetConfig, clock util.Clock, random *rand.Rand) *Server {
	return &Server{
		jobs:       jobs,
		loadTarget: loadTarget,
		clock:      clock,
		rand:       random,
		log:        log.WithField("service", "HttpServer"),
	}
}

// Router returns the handler for all endpoints; checker backs /health.
func (s *Server) Router(checker health.Checker) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware(false))
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(allowCORS)

	health.SetupHttpMux(r, checker)

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.submitJob)
		r.Get("/", s.listJobs)
		r.Get("/{jobId}", s.getJob)
	})
	r.Get("/stats", s.getStats)

	r.Get("/fast", s.fast)
	r.Get("/slow", s.slow)
	r.Get("/error", s.randomError)
	r.Get("/cpu", s.cpu)
	r.Get("/io", s.io)
	r.Get("/users", s.users)
	return r
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	req := s.decodeSubmitRequest(r)
	resp, err := s.jobs.Submit(req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJson(w, r, http.StatusAccepted, resp)
}

// decodeSubmitRequest never fails; a missing or malformed body means the default mode is used.
func (s *Server) decodeSubmitRequest(r *http.Request) engine.SubmitRequest {
	var req engine.SubmitRequest
	body, err := io.ReadAll(r.Body)
	if err != nil || len(strings.TrimSpace(string(body))) == 0 {
		return req
	}
	if err := json.Unmarshal(body, &req); err != nil {
		s.log.WithField("requestId", requestid.FromContextOrMissing(r.Context())).
			WithError(err).Debug("ignoring malformed submit request body")
		return engine.SubmitRequest{}
	}
	return req
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Status(chi.URLParam(r, "jobId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJson(w, r, http.StatusOK, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.List()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJson(w, r, http.StatusOK, jobs)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.jobs.Stats()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJson(w, r, http.StatusOK, stats)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apierrors.HttpStatusFromError(err)
	switch status {
	case http.StatusNotFound:
		s.writeJson(w, r, status, errorResponse{Error: "Job not found"})
	case http.StatusInternalServerError:
		logging.WithStacktrace(s.log, err).
			WithField("requestId", requestid.FromContextOrMissing(r.Context())).
			Error("error handling request")
		s.writeJson(w, r, status, errorResponse{Error: "Internal error"})
	default:
		s.writeJson(w, r, status, errorResponse{Error: err.Error()})
	}
}

func (s *Server) writeJson(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithField("requestId", requestid.FromContextOrMissing(r.Context())).
			WithError(err).Warn("failed to write response")
	}
}
