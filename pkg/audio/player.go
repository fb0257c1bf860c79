package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// Player plays mono 16-bit PCM on the default output device.
type Player struct {
	mu   sync.Mutex
	mctx *malgo.AllocatedContext
}

func NewPlayer() (*Player, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Player{mctx: mctx}, nil
}

// Play blocks until pcm has been played or ctx is done. Calls are
// serialized.
func (p *Player) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mctx == nil {
		return fmt.Errorf("player closed")
	}
	if len(pcm) == 0 {
		return nil
	}

	q := newPlaybackQueue(pcm)

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = Channels
	cfg.SampleRate = uint32(sampleRate)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(p.mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, _ uint32) {
			q.fill(output)
		},
	})
	if err != nil {
		return fmt.Errorf("open playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("start playback device: %w", err)
	}
	defer func() { _ = device.Stop() }()

	select {
	case <-q.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mctx == nil {
		return nil
	}
	err := p.mctx.Uninit()
	p.mctx.Free()
	p.mctx = nil
	return err
}

// playbackQueue feeds the device callback and signals once the last sample
// has been handed to the device.
type playbackQueue struct {
	mu      sync.Mutex
	pending []byte
	drained chan struct{}
	once    sync.Once
}

func newPlaybackQueue(pcm []byte) *playbackQueue {
	return &playbackQueue{pending: pcm, drained: make(chan struct{})}
}

func (q *playbackQueue) fill(output []byte) {
	q.mu.Lock()
	n := copy(output, q.pending)
	q.pending = q.pending[n:]
	empty := len(q.pending) == 0
	q.mu.Unlock()

	for i := n; i < len(output); i++ {
		output[i] = 0
	}
	// One silent period lets the device flush the tail before stopping.
	if empty && n == 0 {
		q.once.Do(func() { close(q.drained) })
	}
}
