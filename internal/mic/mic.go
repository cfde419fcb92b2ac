// Package mic captures the default input device through PortAudio.
package mic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"

	"github.com/lukasbauer/livescribe/internal/audio"
	"github.com/lukasbauer/livescribe/internal/capture"
)

// Opener opens the system default input device.
type Opener struct {
	framesPerBlock int
	logger         *logrus.Logger
}

// NewOpener returns an Opener delivering blocks of framesPerBlock samples.
func NewOpener(framesPerBlock int, logger *logrus.Logger) *Opener {
	if framesPerBlock <= 0 {
		framesPerBlock = audio.FramesPerBlock
	}
	return &Opener{framesPerBlock: framesPerBlock, logger: logger}
}

// Open initializes PortAudio and checks that a default input exists. The
// stream itself is opened by Attach.
func (o *Opener) Open(ctx context.Context) (capture.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, mapError(err)
	}

	info, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceNotFound, err)
	}
	if info.MaxInputChannels < 1 {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %s has no input channels", capture.ErrDeviceNotFound, info.Name)
	}

	o.logger.WithFields(logrus.Fields{
		"device":      info.Name,
		"sample_rate": audio.SampleRate,
		"frames":      o.framesPerBlock,
	}).Debug("mic: default input selected")

	return &Mic{info: info, frames: o.framesPerBlock}, nil
}

// Mic is an initialized PortAudio input.
type Mic struct {
	info   *portaudio.DeviceInfo
	frames int

	mu     sync.Mutex
	graph  *graph
	closed bool
}

// Attach opens a mono 16 kHz callback stream and starts it.
func (m *Mic) Attach(handle capture.BlockHandler) (capture.Graph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("%w: device closed", capture.ErrDeviceUnreadable)
	}
	if m.graph != nil {
		return nil, errors.New("mic: already attached")
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, audio.SampleRate, m.frames, func(in []float32) {
		handle(audio.Block(in))
	})
	if err != nil {
		return nil, mapError(err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, mapError(err)
	}

	m.graph = &graph{stream: stream}
	return m.graph, nil
}

// Close stops the input stream. PortAudio itself is released by the
// graph's Disconnect, or here if no graph was ever attached.
func (m *Mic) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.graph == nil {
		return portaudio.Terminate()
	}
	return m.graph.stop()
}

type graph struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	done   bool
}

func (g *graph) Suspend() error {
	return g.stop()
}

func (g *graph) Resume() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return fmt.Errorf("%w: stream closed", capture.ErrDeviceUnreadable)
	}
	if err := g.stream.Start(); err != nil && !errors.Is(err, portaudio.StreamIsNotStopped) {
		return mapError(err)
	}
	return nil
}

func (g *graph) stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return nil
	}
	if err := g.stream.Stop(); err != nil && !errors.Is(err, portaudio.StreamIsStopped) {
		return err
	}
	return nil
}

// Disconnect closes the stream and terminates PortAudio.
func (g *graph) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return nil
	}
	g.done = true
	return errors.Join(g.stream.Close(), portaudio.Terminate())
}

// mapError wraps PortAudio failures with the capture sentinels.
func mapError(err error) error {
	var pe portaudio.Error
	if !errors.As(err, &pe) {
		return fmt.Errorf("%w: %v", capture.ErrDeviceUnreadable, err)
	}
	switch pe {
	case portaudio.InvalidDevice, portaudio.HostApiNotFound, portaudio.InvalidChannelCount:
		return fmt.Errorf("%w: %v", capture.ErrDeviceNotFound, err)
	default:
		return fmt.Errorf("%w: %v", capture.ErrDeviceUnreadable, err)
	}
}
