package capture

import (
	"context"

	"github.com/lukasbauer/livescribe/internal/audio"
)

// BlockHandler receives one audio block per host callback. It runs on the
// host audio thread and must not block.
type BlockHandler func(audio.Block)

// DeviceOpener acquires capture devices.
type DeviceOpener interface {
	// Open acquires the capture device. Implementations wrap their platform
	// failures with ErrPermissionDenied, ErrDeviceNotFound or
	// ErrDeviceUnreadable.
	Open(ctx context.Context) (Device, error)
}

// Device is an acquired capture device handle.
type Device interface {
	// Attach connects the processing graph and starts delivering blocks to
	// handle.
	Attach(handle BlockHandler) (Graph, error)

	// Close stops the device tracks.
	Close() error
}

// Graph is the audio processing graph feeding a BlockHandler.
type Graph interface {
	Suspend() error
	Resume() error
	Disconnect() error
}
