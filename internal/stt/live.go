package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lukasbauer/livescribe/internal/transcript"
	"github.com/sirupsen/logrus"
)

const defaultLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// LiveConfig holds configuration for the live websocket API.
type LiveConfig struct {
	URL          string // defaults to the public endpoint
	APIKey       string
	Model        string        // e.g., "models/gemini-2.0-flash-live-001"
	WriteTimeout time.Duration // per-message write deadline, 0 for none
}

// LiveDialer opens LiveClient sessions.
type LiveDialer struct {
	cfg    LiveConfig
	logger *logrus.Logger
	dialer *websocket.Dialer
}

// NewLiveDialer creates a dialer for the live API.
func NewLiveDialer(cfg LiveConfig, logger *logrus.Logger) *LiveDialer {
	if cfg.URL == "" {
		cfg.URL = defaultLiveURL
	}
	if cfg.Model == "" {
		cfg.Model = "models/gemini-2.0-flash-live-001"
	}
	return &LiveDialer{cfg: cfg, logger: logger, dialer: websocket.DefaultDialer}
}

// Wire messages. Only the fields this client reads or writes are modelled.
type liveSetup struct {
	Setup struct {
		Model            string `json:"model"`
		GenerationConfig struct {
			ResponseModalities []Modality `json:"responseModalities"`
		} `json:"generationConfig"`
		InputAudioTranscription *struct{}           `json:"inputAudioTranscription,omitempty"`
		SpeakerDiarization      *speakerDiarization `json:"speakerDiarization,omitempty"`
	} `json:"setup"`
}

type speakerDiarization struct {
	MaxSpeakerCount int `json:"maxSpeakerCount"`
}

type liveMediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type liveRealtimeInput struct {
	RealtimeInput struct {
		MediaChunks []liveMediaChunk `json:"mediaChunks"`
	} `json:"realtimeInput"`
}

type liveServerMessage struct {
	SetupComplete *struct{} `json:"setupComplete,omitempty"`
	ServerContent *struct {
		InputTranscription *struct {
			Text      string `json:"text"`
			SpeakerID int    `json:"speakerId,omitempty"`
		} `json:"inputTranscription,omitempty"`
	} `json:"serverContent,omitempty"`
	GoAway *struct {
		TimeLeft string `json:"timeLeft"`
	} `json:"goAway,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// LiveClient implements Session over a single websocket connection.
type LiveClient struct {
	conn         *websocket.Conn
	logger       *logrus.Logger
	writeTimeout time.Duration

	fragments chan transcript.Fragment
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex     // serializes writes
	wg        sync.WaitGroup // waits for readLoop
}

// Dial connects, sends the setup message, and waits for the server to
// acknowledge it. The context bounds the whole handshake.
func (d *LiveDialer) Dial(ctx context.Context, cfg SessionConfig) (Session, error) {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url: %v", ErrConnection, err)
	}
	if d.cfg.APIKey != "" {
		q := u.Query()
		q.Set("key", d.cfg.APIKey)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConnection, resp.Status, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if err := handshake(ctx, conn, d.cfg.Model, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	c := &LiveClient{
		conn:         conn,
		logger:       d.logger,
		writeTimeout: d.cfg.WriteTimeout,
		fragments:    make(chan transcript.Fragment, 100),
		errors:       make(chan error, 1),
		done:         make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	d.logger.Debugf("stt: live session open (model %s)", d.cfg.Model)
	return c, nil
}

func handshake(ctx context.Context, conn *websocket.Conn, model string, cfg SessionConfig) error {
	var setup liveSetup
	setup.Setup.Model = model
	modality := cfg.Modality
	if modality == "" {
		modality = ModalityText
	}
	setup.Setup.GenerationConfig.ResponseModalities = []Modality{modality}
	if cfg.Transcription {
		setup.Setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.MaxSpeakers > 0 {
		setup.Setup.SpeakerDiarization = &speakerDiarization{MaxSpeakerCount: cfg.MaxSpeakers}
	}

	if err := conn.WriteJSON(setup); err != nil {
		return fmt.Errorf("%w: send setup: %v", ErrConnection, err)
	}

	// Cancelling ctx closes the connection so the read below unblocks.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrConnection, ctx.Err())
			}
			return fmt.Errorf("%w: await setup: %v", ErrConnection, err)
		}
		var sm liveServerMessage
		if err := json.Unmarshal(msg, &sm); err != nil {
			continue
		}
		if sm.Error != nil {
			return fmt.Errorf("%w: setup rejected: %d %s", ErrConnection, sm.Error.Code, sm.Error.Message)
		}
		if sm.SetupComplete != nil {
			break
		}
	}

	return conn.SetReadDeadline(time.Time{})
}

// SendMedia writes one realtime input message.
func (c *LiveClient) SendMedia(ctx context.Context, m Media) error {
	var msg liveRealtimeInput
	msg.RealtimeInput.MediaChunks = []liveMediaChunk{{MIMEType: m.MIMEType, Data: m.Data}}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return fmt.Errorf("client is closed")
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteJSON(msg)
}

// Fragments returns the channel of transcript fragments.
func (c *LiveClient) Fragments() <-chan transcript.Fragment {
	return c.fragments
}

// Errors returns the channel carrying the terminal error, if any.
func (c *LiveClient) Errors() <-chan error {
	return c.errors
}

// Close closes the connection and waits for the read loop to exit.
func (c *LiveClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		// WriteControl may run alongside a stalled SendMedia, so c.mu is
		// not taken; closing the conn unblocks that writer.
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))

		err = c.conn.Close()

		// Wait for readLoop to finish before closing channels
		c.wg.Wait()
		close(c.fragments)
		close(c.errors)
	})
	return err
}

func (c *LiveClient) fail(err error) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.errors <- err:
	default:
	}
}

func (c *LiveClient) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(fmt.Errorf("%w: read: %v", ErrConnection, err))
			return
		}

		var sm liveServerMessage
		if err := json.Unmarshal(msg, &sm); err != nil {
			c.logger.Warnf("stt: failed to parse message: %v", err)
			continue
		}

		switch {
		case sm.Error != nil:
			c.fail(fmt.Errorf("%w: %d %s", ErrConnection, sm.Error.Code, sm.Error.Message))
			return
		case sm.GoAway != nil:
			c.fail(fmt.Errorf("%w: server going away (time left %s)", ErrConnection, sm.GoAway.TimeLeft))
			return
		case sm.ServerContent == nil || sm.ServerContent.InputTranscription == nil:
			continue
		}

		it := sm.ServerContent.InputTranscription
		if it.Text == "" {
			continue
		}

		select {
		case <-c.done:
			return
		case c.fragments <- transcript.Fragment{Text: it.Text, Speaker: it.SpeakerID}:
		}
	}
}
