package stt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lukasbauer/livescribe/internal/transcript"
	"github.com/sirupsen/logrus"
)

var testUpgrader = websocket.Upgrader{}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// newLiveServer starts a websocket server running handler for each
// connection and returns a dialer pointed at it.
func newLiveServer(t *testing.T, handler func(conn *websocket.Conn)) *LiveDialer {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			http.Error(w, "bad key", http.StatusUnauthorized)
			return
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)

	return NewLiveDialer(LiveConfig{
		URL:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		APIKey: "test-key",
		Model:  "models/test",
	}, testLogger())
}

func readSetup(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Errorf("read setup: %v", err)
		return nil
	}
	return msg
}

func TestLiveDialStreamsFragments(t *testing.T) {
	gotMedia := make(chan liveRealtimeInput, 1)

	d := newLiveServer(t, func(conn *websocket.Conn) {
		setup := readSetup(t, conn)
		s, _ := setup["setup"].(map[string]any)
		if s["model"] != "models/test" {
			t.Errorf("model = %v", s["model"])
		}
		if _, ok := s["inputAudioTranscription"]; !ok {
			t.Error("setup should request input transcription")
		}
		if sd, _ := s["speakerDiarization"].(map[string]any); sd["maxSpeakerCount"] != float64(3) {
			t.Errorf("speakerDiarization = %v", s["speakerDiarization"])
		}
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})

		var in liveRealtimeInput
		if err := conn.ReadJSON(&in); err != nil {
			t.Errorf("read media: %v", err)
			return
		}
		gotMedia <- in

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"inputTranscription":{"text":"Hello","speakerId":1}}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"inputTranscription":{"text":""}}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"modelTurn":{}}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"serverContent":{"inputTranscription":{"text":" there"}}}`))

		// Keep the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := d.Dial(ctx, SessionConfig{Modality: ModalityText, Transcription: true, MaxSpeakers: 3})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	if err := sess.SendMedia(ctx, Media{Data: "AAA=", MIMEType: "audio/pcm;rate=16000"}); err != nil {
		t.Fatalf("SendMedia: %v", err)
	}

	select {
	case in := <-gotMedia:
		chunks := in.RealtimeInput.MediaChunks
		if len(chunks) != 1 || chunks[0].Data != "AAA=" || chunks[0].MIMEType != "audio/pcm;rate=16000" {
			t.Errorf("media chunks = %+v", chunks)
		}
	case <-ctx.Done():
		t.Fatal("server never received media")
	}

	want := []transcript.Fragment{{Text: "Hello", Speaker: 1}, {Text: " there"}}
	for i, w := range want {
		select {
		case got := <-sess.Fragments():
			if got != w {
				t.Errorf("fragment %d = %+v, want %+v", i, got, w)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for fragment %d", i)
		}
	}
}

func TestLiveTerminalError(t *testing.T) {
	d := newLiveServer(t, func(conn *websocket.Conn) {
		readSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":{"code":500,"message":"boom"}}`))
		time.Sleep(100 * time.Millisecond)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := d.Dial(ctx, SessionConfig{Transcription: true})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	select {
	case err := <-sess.Errors():
		if !errors.Is(err, ErrConnection) {
			t.Errorf("error = %v, want ErrConnection", err)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for terminal error")
	}
}

func TestLiveSetupRejected(t *testing.T) {
	d := newLiveServer(t, func(conn *websocket.Conn) {
		readSetup(t, conn)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":{"code":400,"message":"bad model"}}`))
	})

	_, err := d.Dial(context.Background(), SessionConfig{})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Dial error = %v, want ErrConnection", err)
	}
	if !strings.Contains(err.Error(), "bad model") {
		t.Errorf("error should carry server message: %v", err)
	}
}

func TestLiveDialRefused(t *testing.T) {
	d := newLiveServer(t, func(conn *websocket.Conn) {})
	d.cfg.APIKey = "wrong"

	_, err := d.Dial(context.Background(), SessionConfig{})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Dial error = %v, want ErrConnection", err)
	}
}

func TestLiveDialTimeout(t *testing.T) {
	release := make(chan struct{})
	d := newLiveServer(t, func(conn *websocket.Conn) {
		readSetup(t, conn)
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := d.Dial(ctx, SessionConfig{})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("Dial error = %v, want ErrConnection", err)
	}
}

func TestLiveCloseIdempotent(t *testing.T) {
	d := newLiveServer(t, func(conn *websocket.Conn) {
		readSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	sess, err := d.Dial(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	_ = sess.Close()
	_ = sess.Close()

	if _, ok := <-sess.Fragments(); ok {
		t.Error("fragments channel should be closed")
	}
	if err := sess.SendMedia(context.Background(), Media{Data: "AA=="}); err == nil {
		t.Error("SendMedia after Close should fail")
	}
}

// stalledPeer completes setup and then never reads again, so client writes
// eventually block on full socket buffers.
func stalledPeer(t *testing.T, writeTimeout time.Duration) *LiveDialer {
	t.Helper()
	release := make(chan struct{})
	d := newLiveServer(t, func(conn *websocket.Conn) {
		readSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
		<-release
	})
	t.Cleanup(func() { close(release) })
	d.cfg.WriteTimeout = writeTimeout
	return d
}

func TestLiveCloseWithStalledWrite(t *testing.T) {
	d := stalledPeer(t, 0)
	sess, err := d.Dial(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	chunk := Media{MIMEType: "audio/pcm;rate=16000", Data: strings.Repeat("A", 1<<20)}
	var sent atomic.Int64
	senderDone := make(chan struct{})
	go func() {
		defer close(senderDone)
		for {
			if err := sess.SendMedia(context.Background(), chunk); err != nil {
				return
			}
			sent.Add(1)
		}
	}()

	// Wait until the sender stops making progress.
	last := int64(-1)
	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		n := sent.Load()
		if n == last {
			break
		}
		last = n
	}

	closed := make(chan struct{})
	go func() {
		_ = sess.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked behind a stalled write")
	}
	select {
	case <-senderDone:
	case <-time.After(5 * time.Second):
		t.Fatal("stalled SendMedia did not return after Close")
	}
}

func TestLiveWriteTimeout(t *testing.T) {
	d := stalledPeer(t, 200*time.Millisecond)
	sess, err := d.Dial(context.Background(), SessionConfig{})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sess.Close()

	chunk := Media{MIMEType: "audio/pcm;rate=16000", Data: strings.Repeat("A", 1<<20)}
	errc := make(chan error, 1)
	go func() {
		for {
			if err := sess.SendMedia(context.Background(), chunk); err != nil {
				errc <- err
				return
			}
		}
	}()

	select {
	case err := <-errc:
		if err == nil {
			t.Error("expected a write error")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("SendMedia never hit its write deadline")
	}
}

func TestSetupMessageShape(t *testing.T) {
	var setup liveSetup
	setup.Setup.Model = "m"
	setup.Setup.GenerationConfig.ResponseModalities = []Modality{ModalityText}

	b, err := json.Marshal(setup)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if strings.Contains(s, "inputAudioTranscription") || strings.Contains(s, "speakerDiarization") {
		t.Errorf("optional fields should be omitted: %s", s)
	}
	if !strings.Contains(s, `"responseModalities":["TEXT"]`) {
		t.Errorf("missing modality: %s", s)
	}
}
