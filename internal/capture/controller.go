package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lukasbauer/livescribe/internal/eventlog"
	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/lukasbauer/livescribe/internal/stt"
	"github.com/lukasbauer/livescribe/internal/transcript"
)

const (
	defaultSendQueue    = 64
	defaultTickInterval = time.Second
)

// Summarizer turns a finished transcript into a summary.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// Config holds controller settings and optional collaborators.
type Config struct {
	Session stt.SessionConfig

	// OpenTimeout bounds device acquisition and the live session handshake.
	// Zero means no limit.
	OpenTimeout time.Duration

	SendQueue    int
	TickInterval time.Duration

	Metrics  *metrics.Metrics
	EventLog *eventlog.Logger
	Logger   *logrus.Logger

	// Now is the clock used for elapsed time. Defaults to time.Now.
	Now func() time.Time
}

// Controller drives one capture session at a time through
// Idle → Requesting → Recording ⇄ Paused → Stopped, with Errored reachable
// from Requesting, Recording and Paused.
type Controller struct {
	cfg        Config
	devices    DeviceOpener
	dialer     stt.Dialer
	summarizer Summarizer
	metrics    *metrics.Metrics
	events     *eventlog.Logger
	logger     *logrus.Logger
	now        func() time.Time

	// opMu serializes lifecycle operations. It is never held while waiting
	// on the network during Start, so Stop can abort an acquisition.
	opMu sync.Mutex

	// mu guards the fields below.
	mu          sync.Mutex
	state       State
	session     *captureSession
	sessionID   string
	startedAt   time.Time
	resumedAt   time.Time
	recorded    time.Duration
	asm         *transcript.Assembler
	summary     string
	summarizing bool
	lastErr     *Error

	obsMu     sync.RWMutex
	observers []Observer
}

// NewController creates an idle controller.
func NewController(cfg Config, devices DeviceOpener, dialer stt.Dialer, summarizer Summarizer) *Controller {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Controller{
		cfg:        cfg,
		devices:    devices,
		dialer:     dialer,
		summarizer: summarizer,
		metrics:    cfg.Metrics,
		events:     cfg.EventLog,
		logger:     cfg.Logger,
		now:        cfg.Now,
		state:      Idle,
		asm:        transcript.NewAssembler(),
	}
}

// Subscribe registers an observer for all subsequent events.
func (c *Controller) Subscribe(o Observer) {
	c.obsMu.Lock()
	c.observers = append(c.observers, o)
	c.obsMu.Unlock()
}

func (c *Controller) emit(ev Event) {
	c.obsMu.RLock()
	obs := c.observers
	c.obsMu.RUnlock()
	for _, o := range obs {
		o(ev)
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		SessionID:   c.sessionID,
		State:       c.state,
		Elapsed:     c.elapsedLocked(),
		StartedAt:   c.startedAt,
		Transcript:  c.asm.Text(),
		Summary:     c.summary,
		Summarizing: c.summarizing,
		Err:         c.lastErr,
	}
}

func (c *Controller) elapsedLocked() time.Duration {
	d := c.recorded
	if c.state == Recording {
		d += c.now().Sub(c.resumedAt)
	}
	return d.Truncate(time.Second)
}

// Start acquires the capture device and the live session concurrently and
// begins recording. Partially acquired resources are released on failure.
// It returns ErrSessionActive if a session is already active and
// ErrStartAborted if Stop was called while acquiring.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	c.mu.Lock()
	if c.state.Active() {
		c.mu.Unlock()
		c.opMu.Unlock()
		return ErrSessionActive
	}

	s := newCaptureSession(c.cfg.SendQueue, c.metrics, c.logger)
	var (
		acqCtx context.Context
		abort  context.CancelFunc
	)
	if c.cfg.OpenTimeout > 0 {
		acqCtx, abort = context.WithTimeout(ctx, c.cfg.OpenTimeout)
	} else {
		acqCtx, abort = context.WithCancel(ctx)
	}
	s.abort = abort

	c.session = s
	c.sessionID = s.id.String()
	c.state = Requesting
	c.startedAt = time.Time{}
	c.recorded = 0
	c.asm.Reset()
	c.summary = ""
	c.summarizing = false
	c.lastErr = nil
	c.mu.Unlock()
	c.opMu.Unlock()

	c.emit(Event{Kind: EventState, State: Requesting})

	var (
		device Device
		live   stt.Session
	)
	g, gctx := errgroup.WithContext(acqCtx)
	g.Go(func() error {
		d, err := c.devices.Open(gctx)
		if err != nil {
			return err
		}
		device = d
		return nil
	})
	g.Go(func() error {
		l, err := c.dialer.Dial(gctx, c.cfg.Session)
		if err != nil {
			return err
		}
		live = l
		return nil
	})
	err := g.Wait()
	abort()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	s.device = device
	s.live = live

	c.mu.Lock()
	superseded := c.session != s || c.state != Requesting
	c.mu.Unlock()
	if superseded {
		if rerr := s.release(); rerr != nil {
			c.logger.WithError(rerr).Warn("capture: release after aborted start")
		}
		return ErrStartAborted
	}

	if err != nil {
		return c.failLocked(s, err)
	}

	s.startSender()
	s.recording.Store(true)
	graph, err := device.Attach(s.handleBlock)
	if err != nil {
		return c.failLocked(s, err)
	}
	s.graph = graph

	c.mu.Lock()
	now := c.now()
	c.state = Recording
	c.startedAt = now
	c.resumedAt = now
	c.mu.Unlock()

	s.startTicker(c.cfg.TickInterval, func() { c.tick(s) })
	go c.readFragments(s)

	c.metrics.SessionsStarted.Inc()
	c.metrics.ActiveSessions.Inc()
	c.events.LogAsync(s.id.String(), eventlog.EventSessionStarted, map[string]any{
		"max_speakers": c.cfg.Session.MaxSpeakers,
	})
	c.logger.WithField("session_id", s.id).Info("capture: recording started")

	c.emit(Event{Kind: EventState, State: Recording})
	return nil
}

// Pause suspends the audio graph and stops forwarding blocks. The live
// session and transcript are kept.
func (c *Controller) Pause() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != Recording {
		c.mu.Unlock()
		return ErrInvalidState
	}
	s := c.session
	s.recording.Store(false)
	c.recorded += c.now().Sub(c.resumedAt)
	c.state = Paused
	elapsed := c.elapsedLocked()
	c.mu.Unlock()

	s.stopTicker()
	if err := s.graph.Suspend(); err != nil {
		c.logger.WithField("session_id", s.id).WithError(err).Warn("capture: suspend graph")
	}

	c.events.LogAsync(s.id.String(), eventlog.EventSessionPaused, map[string]any{
		"elapsed_seconds": int(elapsed.Seconds()),
	})
	c.emit(Event{Kind: EventState, State: Paused, Elapsed: elapsed})
	return nil
}

// Resume restarts the audio graph and block forwarding.
func (c *Controller) Resume() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != Paused {
		c.mu.Unlock()
		return ErrInvalidState
	}
	s := c.session
	c.mu.Unlock()

	if err := s.graph.Resume(); err != nil {
		return c.failLocked(s, err)
	}

	c.mu.Lock()
	c.resumedAt = c.now()
	c.state = Recording
	elapsed := c.elapsedLocked()
	s.recording.Store(true)
	c.mu.Unlock()

	s.startTicker(c.cfg.TickInterval, func() { c.tick(s) })

	c.events.LogAsync(s.id.String(), eventlog.EventSessionResumed, nil)
	c.emit(Event{Kind: EventState, State: Recording, Elapsed: elapsed})
	return nil
}

// Stop ends the active session. All resources are released before the
// summary is requested; a summary is only requested when the transcript
// has non-whitespace content. Stop returns once summarization finishes.
// Calling Stop with no active session is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	s, text, ok := c.stop()
	if !ok || strings.TrimSpace(text) == "" {
		return nil
	}
	c.summarize(ctx, s.id.String(), text)
	return nil
}

// Close releases any active session without requesting a summary.
func (c *Controller) Close() error {
	c.stop()
	return nil
}

// stop tears down the active session and reports the final transcript.
// ok is false if no session was recording.
func (c *Controller) stop() (s *captureSession, text string, ok bool) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	s = c.session
	switch c.state {
	case Requesting:
		c.state = Stopped
		c.session = nil
		c.mu.Unlock()
		// Start notices it was superseded and releases what it acquired.
		s.abort()
		c.emit(Event{Kind: EventState, State: Stopped})
		return nil, "", false
	case Recording, Paused:
	default:
		c.mu.Unlock()
		return nil, "", false
	}

	if c.state == Recording {
		c.recorded += c.now().Sub(c.resumedAt)
	}
	c.state = Stopped
	c.session = nil
	text = c.asm.Text()
	elapsed := c.elapsedLocked()
	c.summarizing = strings.TrimSpace(text) != ""
	c.mu.Unlock()

	if err := s.release(); err != nil {
		c.logger.WithField("session_id", s.id).WithError(err).Warn("capture: teardown")
	}
	c.metrics.ActiveSessions.Dec()
	c.metrics.SessionDuration.Observe(elapsed.Seconds())
	c.events.LogAsync(s.id.String(), eventlog.EventSessionStopped, map[string]any{
		"elapsed_seconds":  int(elapsed.Seconds()),
		"transcript_bytes": len(text),
	})
	c.logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"elapsed":    elapsed.String(),
	}).Info("capture: recording stopped")

	c.emit(Event{Kind: EventState, State: Stopped, Elapsed: elapsed})
	return s, text, true
}

func (c *Controller) summarize(ctx context.Context, sessionID, text string) {
	c.emit(Event{Kind: EventSummarizing})
	c.metrics.SummaryRequests.Inc()

	start := time.Now()
	out, err := c.summarizer.Summarize(ctx, text)
	c.metrics.SummaryDuration.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	if c.sessionID != sessionID {
		// A newer session owns the controller now.
		c.mu.Unlock()
		return
	}
	c.summarizing = false
	var cerr *Error
	if err != nil {
		cerr = classified(err)
		c.lastErr = cerr
	} else {
		c.summary = out
	}
	c.mu.Unlock()

	if err != nil {
		c.metrics.SummaryFailures.Inc()
		c.metrics.SessionErrors.WithLabelValues(cerr.Kind.String()).Inc()
		c.events.LogAsync(sessionID, eventlog.EventSummaryFailed, map[string]any{
			"kind": cerr.Kind.String(),
		})
		c.emit(Event{Kind: EventError, Err: cerr})
		return
	}

	c.events.LogAsync(sessionID, eventlog.EventSummaryCompleted, map[string]any{
		"summary_bytes": len(out),
	})
	c.emit(Event{Kind: EventSummary, Summary: out})
}

// fail moves s to Errored unless it has already been superseded.
func (c *Controller) fail(s *captureSession, err error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	current := c.session == s
	c.mu.Unlock()
	if !current {
		return
	}
	c.failLocked(s, err)
}

// failLocked must be called with opMu held. It releases s, records the
// classified error and returns it.
func (c *Controller) failLocked(s *captureSession, err error) *Error {
	cerr := classified(err)

	c.mu.Lock()
	wasRecording := c.state == Recording || c.state == Paused
	if c.state == Recording {
		c.recorded += c.now().Sub(c.resumedAt)
	}
	c.state = Errored
	c.session = nil
	c.lastErr = cerr
	c.summarizing = false
	c.mu.Unlock()

	if rerr := s.release(); rerr != nil {
		c.logger.WithField("session_id", s.id).WithError(rerr).Warn("capture: teardown after failure")
	}
	if wasRecording {
		c.metrics.ActiveSessions.Dec()
	}
	c.metrics.SessionErrors.WithLabelValues(cerr.Kind.String()).Inc()
	c.events.LogAsync(s.id.String(), eventlog.EventSessionErrored, map[string]any{
		"kind": cerr.Kind.String(),
	})
	c.logger.WithFields(logrus.Fields{
		"session_id": s.id,
		"kind":       cerr.Kind.String(),
	}).WithError(err).Error("capture: session failed")

	c.emit(Event{Kind: EventState, State: Errored})
	c.emit(Event{Kind: EventError, Err: cerr})
	return cerr
}

func (c *Controller) tick(s *captureSession) {
	c.mu.Lock()
	if c.session != s || c.state != Recording {
		c.mu.Unlock()
		return
	}
	elapsed := c.elapsedLocked()
	c.mu.Unlock()
	c.emit(Event{Kind: EventTick, Elapsed: elapsed})
}

func (c *Controller) readFragments(s *captureSession) {
	fragments := s.live.Fragments()
	errs := s.live.Errors()
	for fragments != nil || errs != nil {
		select {
		case f, ok := <-fragments:
			if !ok {
				fragments = nil
				continue
			}
			c.applyFragment(s, f)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if errors.Is(err, context.Canceled) {
				continue
			}
			c.fail(s, err)
			return
		}
	}
}

func (c *Controller) applyFragment(s *captureSession, f transcript.Fragment) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	seg := c.asm.Apply(f)
	c.mu.Unlock()

	if seg == "" {
		return
	}
	c.metrics.FragmentsApplied.Inc()
	c.emit(Event{Kind: EventSegment, Segment: seg})
}
