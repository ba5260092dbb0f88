package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/G-Research/jobrunner/internal/jobrunner/workload"
)

// The endpoints below have fixed latency and failure profiles for load tests to run against.

type user struct {
	Id    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) fast(w http.ResponseWriter, r *http.Request) {
	s.writeJson(w, r, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"speed": "fast",
		"ts":    s.clock.Now().UnixMilli(),
	})
}

func (s *Server) slow(w http.ResponseWriter, r *http.Request) {
	if !sleep(r.Context(), workload.Delay(s.loadTarget.SlowDelay, s.rand)) {
		return
	}
	s.writeJson(w, r, http.StatusOK, map[string]interface{}{"ok": true, "speed": "slow"})
}

func (s *Server) randomError(w http.ResponseWriter, r *http.Request) {
	if s.rand.Float64() < s.loadTarget.ErrorProbability {
		s.writeJson(w, r, http.StatusInternalServerError, errorResponse{Error: "Random failure"})
		return
	}
	s.writeJson(w, r, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) cpu(w http.ResponseWriter, r *http.Request) {
	total := workload.BurnCpu(s.loadTarget.CpuIterations)
	s.writeJson(w, r, http.StatusOK, map[string]interface{}{"ok": true, "cpu": total})
}

func (s *Server) io(w http.ResponseWriter, r *http.Request) {
	if !sleep(r.Context(), workload.Delay(s.loadTarget.IoDelay, s.rand)) {
		return
	}
	s.writeJson(w, r, http.StatusOK, map[string]interface{}{"ok": true, "io": "simulated"})
}

func (s *Server) users(w http.ResponseWriter, r *http.Request) {
	users := make([]user, s.loadTarget.UserCount)
	for i := range users {
		users[i] = user{
			Id:    i + 1,
			Name:  fmt.Sprintf("User %d", i+1),
			Email: fmt.Sprintf("user%d@test.com", i+1),
		}
	}
	s.writeJson(w, r, http.StatusOK, users)
}

// sleep waits for d, returning false if ctx is done first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
