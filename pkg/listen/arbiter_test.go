package listen

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lokutor-ai/companion/pkg/audio"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeRecorder hands out queued results, then blocks until cancelled.
type fakeRecorder struct {
	mu      sync.Mutex
	results []recordResult
	calls   int
	started chan struct{}
	closed  bool
}

type recordResult struct {
	pcm []byte
	err error
}

func newFakeRecorder(results ...recordResult) *fakeRecorder {
	return &fakeRecorder{results: results, started: make(chan struct{}, 16)}
}

func (r *fakeRecorder) Record(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	r.calls++
	var next *recordResult
	if len(r.results) > 0 {
		next = &r.results[0]
		r.results = r.results[1:]
	}
	r.mu.Unlock()

	select {
	case r.started <- struct{}{}:
	default:
	}
	if next != nil {
		return next.pcm, next.err
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (r *fakeRecorder) SampleRate() int { return audio.SampleRate }

func (r *fakeRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type fakeTranscriber struct {
	text map[string]string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text[string(pcm)], nil
}

func (f *fakeTranscriber) Name() string { return "fake-stt" }

func TestListenOnDemand(t *testing.T) {
	rec := newFakeRecorder(recordResult{pcm: []byte("a")})
	a := NewArbiter(rec, &fakeTranscriber{text: map[string]string{"a": "  hello  "}}, nil)

	text, err := a.ListenOnDemand(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hello", text)
	require.False(t, a.IsListening())
}

func TestListenOnDemandErrors(t *testing.T) {
	t.Run("no microphone", func(t *testing.T) {
		a := NewArbiter(nil, &fakeTranscriber{}, nil)
		_, err := a.ListenOnDemand(context.Background())
		require.ErrorIs(t, err, ErrMicrophoneUnavailable)
		require.ErrorIs(t, a.StartBackgroundListening(context.Background(), func(string) {}, nil), ErrMicrophoneUnavailable)
	})

	t.Run("no transcriber", func(t *testing.T) {
		a := NewArbiter(newFakeRecorder(), nil, nil)
		_, err := a.ListenOnDemand(context.Background())
		require.ErrorIs(t, err, ErrNotConfigured)
		require.Equal(t, "stt-none", a.Name())
	})

	t.Run("timeout", func(t *testing.T) {
		a := NewArbiter(newFakeRecorder(recordResult{err: audio.ErrWaitTimeout}), &fakeTranscriber{}, nil)
		_, err := a.ListenOnDemand(context.Background())
		require.ErrorIs(t, err, audio.ErrWaitTimeout)
	})

	t.Run("device lost", func(t *testing.T) {
		a := NewArbiter(newFakeRecorder(recordResult{err: audio.ErrNoMicrophone}), &fakeTranscriber{}, nil)
		_, err := a.ListenOnDemand(context.Background())
		require.ErrorIs(t, err, ErrMicrophoneUnavailable)
	})

	t.Run("transcription", func(t *testing.T) {
		boom := errors.New("boom")
		a := NewArbiter(newFakeRecorder(recordResult{pcm: []byte("a")}), &fakeTranscriber{err: boom}, nil)
		_, err := a.ListenOnDemand(context.Background())
		require.ErrorIs(t, err, boom)
	})
}

func TestBackgroundListening(t *testing.T) {
	rec := newFakeRecorder(
		recordResult{pcm: []byte("a")},
		recordResult{err: audio.ErrWaitTimeout},
		recordResult{pcm: []byte("silence")},
		recordResult{pcm: []byte("b")},
	)
	tr := &fakeTranscriber{text: map[string]string{"a": "first", "b": "second"}}
	a := NewArbiter(rec, tr, nil)

	got := make(chan string, 4)
	require.NoError(t, a.StartBackgroundListening(context.Background(), func(text string) { got <- text }, nil))
	require.True(t, a.IsListening())
	require.NoError(t, a.StartBackgroundListening(context.Background(), func(string) {}, nil), "already running is a no-op")

	require.Equal(t, "first", <-got)
	require.Equal(t, "second", <-got)

	a.StopBackgroundListening()
	require.False(t, a.IsListening())
	require.Empty(t, got, "empty transcriptions are not delivered")

	a.StopBackgroundListening()
	require.NoError(t, a.Close())
	require.True(t, rec.closed)
}

func TestBackgroundStopsOnPermanentFailure(t *testing.T) {
	rec := newFakeRecorder(recordResult{err: audio.ErrNoMicrophone}, recordResult{err: audio.ErrNoMicrophone})
	a := NewArbiter(rec, &fakeTranscriber{}, nil)

	stopped := make(chan error, 1)
	require.NoError(t, a.StartBackgroundListening(context.Background(), func(string) {}, func(err error) { stopped <- err }))

	select {
	case err := <-stopped:
		require.ErrorIs(t, err, ErrMicrophoneUnavailable)
	case <-time.After(time.Second):
		t.Fatal("background loop kept running without a microphone")
	}
	require.False(t, a.IsListening())

	// The microphone is free again, so a push-to-talk reports the failure
	// instead of being refused as busy.
	_, err := a.ListenOnDemand(context.Background())
	require.ErrorIs(t, err, ErrMicrophoneUnavailable)

	a.StopBackgroundListening()
	require.Equal(t, 2, rec.calls)
}

func TestStopDoesNotReportStopped(t *testing.T) {
	a := NewArbiter(newFakeRecorder(), &fakeTranscriber{}, nil)
	var reported atomic.Bool
	require.NoError(t, a.StartBackgroundListening(context.Background(), func(string) {}, func(error) { reported.Store(true) }))

	a.StopBackgroundListening()
	require.False(t, reported.Load())
}

func TestBackgroundStopsWithContext(t *testing.T) {
	a := NewArbiter(newFakeRecorder(), &fakeTranscriber{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, a.StartBackgroundListening(ctx, func(string) {}, nil))
	cancel()
	a.StopBackgroundListening()
	require.False(t, a.IsListening())
}

func TestModesAreExclusive(t *testing.T) {
	rec := newFakeRecorder()
	a := NewArbiter(rec, &fakeTranscriber{}, nil)

	require.NoError(t, a.StartBackgroundListening(context.Background(), func(string) {}, nil))
	<-rec.started

	_, err := a.ListenOnDemand(context.Background())
	require.ErrorIs(t, err, ErrMicrophoneBusy)
	a.StopBackgroundListening()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := a.ListenOnDemand(ctx)
		result <- err
	}()
	<-rec.started

	require.ErrorIs(t, a.StartBackgroundListening(context.Background(), func(string) {}, nil), ErrMicrophoneBusy)
	cancel()
	require.ErrorIs(t, <-result, context.Canceled)
	require.False(t, a.IsListening())
}
