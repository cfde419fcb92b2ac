package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/livescribe/internal/capture"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type sessionResponse struct {
	SessionID      string     `json:"session_id,omitempty"`
	State          string     `json:"state"`
	Elapsed        string     `json:"elapsed"`
	ElapsedSeconds int        `json:"elapsed_seconds"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	Transcript     string     `json:"transcript"`
	Summary        string     `json:"summary,omitempty"`
	Summarizing    bool       `json:"summarizing"`
	Error          *errorBody `json:"error,omitempty"`
}

func toSessionResponse(st capture.Status) sessionResponse {
	resp := sessionResponse{
		SessionID:      st.SessionID,
		State:          st.State.String(),
		Elapsed:        capture.FormatElapsed(st.Elapsed),
		ElapsedSeconds: int(st.Elapsed / time.Second),
		Transcript:     st.Transcript,
		Summary:        st.Summary,
		Summarizing:    st.Summarizing,
	}
	if !st.StartedAt.IsZero() {
		t := st.StartedAt.UTC()
		resp.StartedAt = &t
	}
	if st.Err != nil {
		resp.Error = &errorBody{Kind: st.Err.Kind.String(), Message: st.Err.Kind.Message()}
	}
	return resp
}

func (r *Router) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toSessionResponse(r.ctrl.Status()))
}

func (r *Router) handleStart(w http.ResponseWriter, req *http.Request) {
	if err := r.ctrl.Start(req.Context()); err != nil {
		r.writeControlError(w, req, "start", err)
		return
	}
	r.logOp(req, "start")
	writeJSON(w, http.StatusOK, toSessionResponse(r.ctrl.Status()))
}

func (r *Router) handlePause(w http.ResponseWriter, req *http.Request) {
	if err := r.ctrl.Pause(); err != nil {
		r.writeControlError(w, req, "pause", err)
		return
	}
	r.logOp(req, "pause")
	writeJSON(w, http.StatusOK, toSessionResponse(r.ctrl.Status()))
}

func (r *Router) handleResume(w http.ResponseWriter, req *http.Request) {
	if err := r.ctrl.Resume(); err != nil {
		r.writeControlError(w, req, "resume", err)
		return
	}
	r.logOp(req, "resume")
	writeJSON(w, http.StatusOK, toSessionResponse(r.ctrl.Status()))
}

// handleStop returns after teardown and summarization. The summary is not
// tied to the client connection so a dropped request still gets one.
func (r *Router) handleStop(w http.ResponseWriter, req *http.Request) {
	if err := r.ctrl.Stop(context.WithoutCancel(req.Context())); err != nil {
		r.writeControlError(w, req, "stop", err)
		return
	}
	r.logOp(req, "stop")
	writeJSON(w, http.StatusOK, toSessionResponse(r.ctrl.Status()))
}

func (r *Router) logOp(req *http.Request, op string) {
	r.logger.WithFields(logrus.Fields{
		"operator": getOperator(req.Context()),
		"op":       op,
	}).Info("httpapi: session control")
}

func (r *Router) writeControlError(w http.ResponseWriter, req *http.Request, op string, err error) {
	switch {
	case errors.Is(err, capture.ErrSessionActive),
		errors.Is(err, capture.ErrInvalidState),
		errors.Is(err, capture.ErrStartAborted):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
			"state": r.ctrl.Status().State.String(),
		})
		return
	}

	kind := capture.Classify(err)
	status := http.StatusInternalServerError
	switch kind {
	case capture.PermissionDenied, capture.DeviceNotFound, capture.DeviceUnreadable:
		status = http.StatusServiceUnavailable
	case capture.ConnectionError:
		status = http.StatusBadGateway
	default:
		captureError(req, err, "httpapi: "+op+" failed")
	}

	r.logger.WithFields(logrus.Fields{
		"op":   op,
		"kind": kind.String(),
	}).WithError(err).Warn("httpapi: session control failed")

	writeJSON(w, status, map[string]any{
		"error": errorBody{Kind: kind.String(), Message: kind.Message()},
	})
}
