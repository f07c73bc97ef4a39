package admin

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"launchpad-indexer/internal/indexer"
)

// ResyncJob is the latest holder resync of a token.
type ResyncJob struct {
	ID         string                `json:"id"`
	Token      string                `json:"token"`
	State      string                `json:"state"`
	Result     *indexer.ResyncResult `json:"result,omitempty"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"startedAt"`
	FinishedAt *time.Time            `json:"finishedAt,omitempty"`
}

// Resync job states.
const (
	resyncRunning   = "running"
	resyncCompleted = "completed"
	resyncFailed    = "failed"
)

func (s *Server) handleStartResync(w http.ResponseWriter, r *http.Request) {
	token, ok := addressVar(w, r)
	if !ok {
		return
	}

	job := ResyncJob{ID: uuid.NewString(), Token: token, State: resyncRunning, StartedAt: time.Now().UTC()}
	busy := false
	current, _ := s.resyncs.Compute(token, func(old ResyncJob, loaded bool) (ResyncJob, xsync.ComputeOp) {
		if loaded && old.State == resyncRunning {
			busy = true
			return old, xsync.CancelOp
		}
		return job, xsync.UpdateOp
	})
	if busy {
		writeJSON(w, http.StatusConflict, current)
		return
	}

	go func() {
		res, err := s.indexer.ResyncHolders(s.jobs, token)
		now := time.Now().UTC()
		done := job
		done.FinishedAt = &now
		if err != nil {
			done.State = resyncFailed
			done.Error = err.Error()
			s.logger.Warn("holder resync failed", zap.String("token", token), zap.Error(err))
		} else {
			done.State = resyncCompleted
			done.Result = &res
		}
		s.resyncs.Store(token, done)
	}()

	s.logger.Info("holder resync triggered", zap.String("token", token), zap.String("job", job.ID))
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleResyncStatus(w http.ResponseWriter, r *http.Request) {
	token, ok := addressVar(w, r)
	if !ok {
		return
	}
	job, ok := s.resyncs.Load(token)
	if !ok {
		writeError(w, http.StatusNotFound, "no resync for token")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
