package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{}) {}

// Device is a capture device as reported by the audio backend.
type Device struct {
	Index   int
	Name    string
	Default bool
}

// Devices lists the capture devices in backend order. The index is what
// audio_input.mic_device_index refers to.
func Devices() ([]Device, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}
	devices := make([]Device, len(infos))
	for i := range infos {
		devices[i] = Device{Index: i, Name: infos[i].Name(), Default: infos[i].IsDefault != 0}
	}
	return devices, nil
}

// Microphone records single utterances from one capture device. Only one
// Record call runs at a time.
type Microphone struct {
	mctx     *malgo.AllocatedContext
	deviceID *malgo.DeviceID
	name     string
	opts     RecordOptions
	logger   Logger

	recordMu  sync.Mutex
	mu        sync.Mutex
	threshold float64
}

// OpenMicrophone opens the capture device at index, or the default device
// when index is nil. If the requested device cannot be used it falls back to
// the default device. The ambient noise level is sampled once to set the
// speech threshold.
func OpenMicrophone(index *int, opts RecordOptions, logger Logger) (*Microphone, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMicrophone, err)
	}

	m := &Microphone{mctx: mctx, opts: opts, logger: logger, threshold: DefaultThreshold, name: "default"}
	if index != nil {
		if err := m.selectDevice(*index); err != nil {
			logger.Warn("could not use microphone, falling back to default", "index", *index, "error", err)
			m.deviceID, m.name = nil, "default"
		}
	}

	err = m.calibrate(time.Second)
	if err != nil && m.deviceID != nil {
		logger.Warn("calibration failed on selected microphone, falling back to default", "device", m.name, "error", err)
		m.deviceID, m.name = nil, "default"
		err = m.calibrate(time.Second)
	}
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("%w: %v", ErrNoMicrophone, err)
	}

	logger.Info("microphone ready", "device", m.name, "threshold", m.Threshold())
	return m, nil
}

func (m *Microphone) selectDevice(index int) error {
	infos, err := m.mctx.Devices(malgo.Capture)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(infos) {
		return fmt.Errorf("device index %d out of range (%d devices)", index, len(infos))
	}
	id := infos[index].ID
	m.deviceID = &id
	m.name = infos[index].Name()
	return nil
}

func (m *Microphone) Name() string {
	return m.name
}

func (m *Microphone) SampleRate() int {
	return SampleRate
}

func (m *Microphone) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}

func (m *Microphone) calibrate(window time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()

	var ambient [][]byte
	err := m.capture(ctx, func(frames <-chan Frame) error {
		for f := range frames {
			ambient = append(ambient, f.PCM)
		}
		return nil
	})
	if err != nil {
		return err
	}

	vad := NewRMSVAD(DefaultThreshold, m.opts.SilenceLimit)
	threshold := vad.Calibrate(ambient)
	m.mu.Lock()
	m.threshold = threshold
	m.mu.Unlock()
	return nil
}

// Record waits for one utterance and returns its PCM at SampleRate.
func (m *Microphone) Record(ctx context.Context) ([]byte, error) {
	m.recordMu.Lock()
	defer m.recordMu.Unlock()
	if m.mctx == nil {
		return nil, ErrNoMicrophone
	}

	vad := NewRMSVAD(m.Threshold(), m.opts.SilenceLimit)
	var pcm []byte
	err := m.capture(ctx, func(frames <-chan Frame) error {
		var err error
		pcm, err = CollectPhrase(ctx, frames, vad, m.opts, SampleRate)
		return err
	})
	return pcm, err
}

// capture runs the device until consume returns or ctx is done. frames is
// closed once the device has stopped.
func (m *Microphone) capture(ctx context.Context, consume func(frames <-chan Frame) error) error {
	frames := make(chan Frame, 64)
	var (
		closeMu sync.Mutex
		closed  bool
	)

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = Channels
	cfg.SampleRate = SampleRate
	cfg.Alsa.NoMMap = 1
	if m.deviceID != nil {
		cfg.Capture.DeviceID = m.deviceID.Pointer()
	}

	device, err := malgo.InitDevice(m.mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			chunk := make([]byte, len(input))
			copy(chunk, input)
			closeMu.Lock()
			defer closeMu.Unlock()
			if closed {
				return
			}
			select {
			case frames <- Frame{PCM: chunk, At: time.Now()}:
			default:
			}
		},
	})
	if err != nil {
		return fmt.Errorf("open capture device %s: %w", m.name, err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("start capture device %s: %w", m.name, err)
	}

	result := make(chan error, 1)
	go func() { result <- consume(frames) }()

	var consumeErr error
	select {
	case consumeErr = <-result:
		_ = device.Stop()
		closeMu.Lock()
		closed = true
		close(frames)
		closeMu.Unlock()
	case <-ctx.Done():
		_ = device.Stop()
		closeMu.Lock()
		closed = true
		close(frames)
		closeMu.Unlock()
		consumeErr = <-result
	}
	return consumeErr
}

// Close waits for a running Record to return before freeing the backend
// context.
func (m *Microphone) Close() error {
	m.recordMu.Lock()
	defer m.recordMu.Unlock()
	if m.mctx == nil {
		return nil
	}
	err := m.mctx.Uninit()
	m.mctx.Free()
	m.mctx = nil
	return err
}
