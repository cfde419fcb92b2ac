package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lukasbauer/livescribe/internal/capture"
	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/lukasbauer/livescribe/internal/stt"
)

type fakeController struct {
	status   capture.Status
	startErr error
	pauseErr error
	stopErr  error
	stopCtx  context.Context
	calls    []string
}

func (f *fakeController) Start(ctx context.Context) error {
	f.calls = append(f.calls, "start")
	if f.startErr == nil {
		f.status.State = capture.Recording
	}
	return f.startErr
}

func (f *fakeController) Pause() error {
	f.calls = append(f.calls, "pause")
	return f.pauseErr
}

func (f *fakeController) Resume() error {
	f.calls = append(f.calls, "resume")
	return nil
}

func (f *fakeController) Stop(ctx context.Context) error {
	f.calls = append(f.calls, "stop")
	f.stopCtx = ctx
	return f.stopErr
}

func (f *fakeController) Status() capture.Status { return f.status }

const testSecret = "test-secret-key"

func newTestRouter(t *testing.T, ctrl *fakeController, ops *OpRegistry) (http.Handler, string) {
	t.Helper()
	token, _, err := GenerateToken(testSecret, "booth-1", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	h := NewRouter(RouterConfig{JWTSecret: testSecret, JWTExpiry: time.Hour}, quietLogger(), ctrl, metrics.New().Handler(), ops)
	return h, token
}

func do(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetSession(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ctrl := &fakeController{status: capture.Status{
		SessionID:  "7b0c",
		State:      capture.Stopped,
		Elapsed:    83 * time.Second,
		StartedAt:  started,
		Transcript: "\n\n**Speaker 1:** Hello",
		Summary:    "## Overview",
		Err:        &capture.Error{Kind: capture.GenerationError},
	}}
	h, token := newTestRouter(t, ctrl, nil)

	rec := do(h, http.MethodGet, "/api/session", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "stopped" || resp.Elapsed != "01:23" || resp.ElapsedSeconds != 83 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.StartedAt == nil || !resp.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", resp.StartedAt, started)
	}
	if resp.Error == nil || resp.Error.Kind != "generation_error" || resp.Error.Message == "" {
		t.Errorf("Error = %+v", resp.Error)
	}
	if resp.Transcript != ctrl.status.Transcript {
		t.Errorf("Transcript = %q", resp.Transcript)
	}
}

func TestSessionRequiresAuth(t *testing.T) {
	ctrl := &fakeController{}
	h, _ := newTestRouter(t, ctrl, nil)

	for _, path := range []string{"/api/session/start", "/api/session/stop"} {
		if rec := do(h, http.MethodPost, path, ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("POST %s status = %d, want 401", path, rec.Code)
		}
	}
	if len(ctrl.calls) != 0 {
		t.Errorf("controller called without auth: %v", ctrl.calls)
	}
}

func TestSessionControlErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		setup    func(*fakeController)
		want     int
		wantKind string
	}{
		{
			name:  "start while active",
			path:  "/api/session/start",
			setup: func(f *fakeController) { f.startErr = capture.ErrSessionActive },
			want:  http.StatusConflict,
		},
		{
			name:  "pause in wrong state",
			path:  "/api/session/pause",
			setup: func(f *fakeController) { f.pauseErr = capture.ErrInvalidState },
			want:  http.StatusConflict,
		},
		{
			name: "start with no microphone",
			path: "/api/session/start",
			setup: func(f *fakeController) {
				f.startErr = &capture.Error{Kind: capture.DeviceNotFound, Err: capture.ErrDeviceNotFound}
			},
			want:     http.StatusServiceUnavailable,
			wantKind: "device_not_found",
		},
		{
			name: "start with service down",
			path: "/api/session/start",
			setup: func(f *fakeController) {
				f.startErr = fmt.Errorf("%w: 503", stt.ErrConnection)
			},
			want:     http.StatusBadGateway,
			wantKind: "connection_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{}
			tt.setup(ctrl)
			h, token := newTestRouter(t, ctrl, nil)

			rec := do(h, http.MethodPost, tt.path, token)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.wantKind != "" && !strings.Contains(rec.Body.String(), `"kind":"`+tt.wantKind+`"`) {
				t.Errorf("body %s missing kind %q", rec.Body.String(), tt.wantKind)
			}
		})
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	ctrl := &fakeController{}
	h, token := newTestRouter(t, ctrl, nil)

	for _, path := range []string{"/api/session/start", "/api/session/pause", "/api/session/resume", "/api/session/stop"} {
		if rec := do(h, http.MethodPost, path, token); rec.Code != http.StatusOK {
			t.Fatalf("POST %s status = %d: %s", path, rec.Code, rec.Body.String())
		}
	}

	want := []string{"start", "pause", "resume", "stop"}
	if strings.Join(ctrl.calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", ctrl.calls, want)
	}
}

func TestStopDetachesFromRequestContext(t *testing.T) {
	ctrl := &fakeController{}
	h, token := newTestRouter(t, ctrl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/session/stop", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+token)
	cancel()
	h.ServeHTTP(httptest.NewRecorder(), req)

	if ctrl.stopCtx == nil {
		t.Fatal("Stop not called")
	}
	if ctrl.stopCtx.Err() != nil {
		t.Error("summary context should survive client cancellation")
	}
}

func TestControlRejectedWhileDraining(t *testing.T) {
	ops := NewOpRegistry()
	ops.StartDraining()
	ctrl := &fakeController{}
	h, token := newTestRouter(t, ctrl, ops)

	if rec := do(h, http.MethodPost, "/api/session/start", token); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if len(ctrl.calls) != 0 {
		t.Errorf("controller called while draining: %v", ctrl.calls)
	}
	if rec := do(h, http.MethodGet, "/api/session", token); rec.Code != http.StatusOK {
		t.Errorf("status read while draining = %d, want 200", rec.Code)
	}
}

func TestPublicEndpoints(t *testing.T) {
	h, _ := newTestRouter(t, &fakeController{}, nil)

	if rec := do(h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
	rec := do(h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "livescribe_sessions_started_total") {
		t.Errorf("metrics = %d, body missing session counter", rec.Code)
	}
	if rec := do(h, http.MethodOptions, "/api/session/start", ""); rec.Code != http.StatusNoContent {
		t.Errorf("preflight = %d, want 204", rec.Code)
	}
}
