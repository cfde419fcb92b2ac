package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/livescribe/internal/audio"
	"github.com/lukasbauer/livescribe/internal/metrics"
	"github.com/lukasbauer/livescribe/internal/stt"
)

// captureSession owns every resource acquired for one recording. All of its
// non-atomic fields are only touched while the controller's opMu is held,
// except handleBlock which runs on the audio thread.
type captureSession struct {
	id uuid.UUID

	// ctx lives until release and bounds SendMedia calls.
	ctx    context.Context
	cancel context.CancelFunc

	// abort cancels an in-flight acquisition.
	abort context.CancelFunc

	device Device
	graph  Graph
	live   stt.Session

	recording atomic.Bool
	sendQ     chan stt.Media
	done      chan struct{}
	sendDone  chan struct{}

	tickStop chan struct{}
	tickDone chan struct{}

	releaseOnce sync.Once
	releaseErr  error

	metrics *metrics.Metrics
	logger  *logrus.Logger
}

func newCaptureSession(queue int, m *metrics.Metrics, logger *logrus.Logger) *captureSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &captureSession{
		id:      uuid.New(),
		ctx:     ctx,
		cancel:  cancel,
		abort:   func() {},
		sendQ:   make(chan stt.Media, queue),
		done:    make(chan struct{}),
		metrics: m,
		logger:  logger,
	}
}

// handleBlock is the per-block processing step. Blocks are only forwarded
// while recording and never block the audio thread.
func (s *captureSession) handleBlock(b audio.Block) {
	if !s.recording.Load() {
		s.metrics.BlocksDropped.WithLabelValues("not_recording").Inc()
		return
	}

	m := stt.Media{
		Data:     audio.Encode(audio.Frame(b)),
		MIMEType: audio.MIMEType,
	}
	select {
	case s.sendQ <- m:
	default:
		s.metrics.BlocksDropped.WithLabelValues("queue_full").Inc()
	}
}

// runSender drains the send queue into the live session. Send failures are
// not surfaced to the user; a dead connection shows up on Errors().
func (s *captureSession) runSender() {
	defer close(s.sendDone)
	for {
		select {
		case <-s.done:
			return
		case m := <-s.sendQ:
			if err := s.live.SendMedia(s.ctx, m); err != nil {
				s.metrics.SendErrors.Inc()
				s.logger.WithField("session_id", s.id).WithError(err).Debug("capture: send media failed")
				continue
			}
			s.metrics.BlocksSent.Inc()
		}
	}
}

func (s *captureSession) startSender() {
	s.sendDone = make(chan struct{})
	go s.runSender()
}

func (s *captureSession) startTicker(interval time.Duration, tick func()) {
	if s.tickStop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.tickStop, s.tickDone = stop, done

	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				tick()
			}
		}
	}()
}

func (s *captureSession) stopTicker() {
	if s.tickStop == nil {
		return
	}
	close(s.tickStop)
	<-s.tickDone
	s.tickStop, s.tickDone = nil, nil
}

func (s *captureSession) closeLive() error {
	if s.live == nil {
		return nil
	}
	return s.live.Close()
}

func (s *captureSession) closeDevice() error {
	if s.device == nil {
		return nil
	}
	return s.device.Close()
}

func (s *captureSession) disconnectGraph() error {
	if s.graph == nil {
		return nil
	}
	return s.graph.Disconnect()
}

func (s *captureSession) stopSender() error {
	close(s.done)
	if s.sendDone != nil {
		<-s.sendDone
	}
	return nil
}

// release tears the session down in a fixed order. Every step runs even if
// an earlier one fails or panics. Subsequent calls return the first result.
func (s *captureSession) release() error {
	s.releaseOnce.Do(func() {
		s.recording.Store(false)
		s.abort()

		steps := []struct {
			name string
			fn   func() error
		}{
			{"ticker", func() error { s.stopTicker(); return nil }},
			{"live session", s.closeLive},
			{"device", s.closeDevice},
			{"graph", s.disconnectGraph},
			{"sender", s.stopSender},
		}

		var errs []error
		for _, step := range steps {
			if err := runStep(step.fn); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			}
		}
		s.cancel()
		s.releaseErr = errors.Join(errs...)
	})
	return s.releaseErr
}

func runStep(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
