package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lokutor-ai/companion/pkg/settings"
	"github.com/stretchr/testify/require"
)

type callLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *callLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

type MockAIProvider struct {
	mu    sync.Mutex
	reply string
	calls [][]Message
	// gate, when set, makes every call wait for one receive.
	gate  chan struct{}
	panic bool
}

func (m *MockAIProvider) GetResponse(ctx context.Context, messages []Message) string {
	m.mu.Lock()
	m.calls = append(m.calls, append([]Message(nil), messages...))
	gate, reply, shouldPanic := m.gate, m.reply, m.panic
	m.mu.Unlock()

	if shouldPanic {
		panic("boom")
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "cancelled"
		}
	}
	return reply
}

func (m *MockAIProvider) Name() string { return "MockAI" }

func (m *MockAIProvider) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.calls...)
}

func (m *MockAIProvider) lastUserPrompt() string {
	calls := m.Calls()
	if len(calls) == 0 {
		return ""
	}
	msgs := calls[len(calls)-1]
	return msgs[len(msgs)-1].Content
}

type MockTTSProvider struct {
	mu    sync.Mutex
	ok    bool
	calls []string
	gate  chan struct{}
}

func (m *MockTTSProvider) Speak(ctx context.Context, text string) bool {
	m.mu.Lock()
	m.calls = append(m.calls, text)
	gate, ok := m.gate, m.ok
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return false
		}
	}
	return ok
}

func (m *MockTTSProvider) Name() string { return "MockTTS" }

func (m *MockTTSProvider) setOK(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ok = ok
}

func (m *MockTTSProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type MockSTTProvider struct {
	id  int
	log *callLog

	mu           sync.Mutex
	onDemandText string
	onDemandErr  error
	listenCalls  int
	startErr     error
	starts       int
	onText       func(string)
	onStopped    func(error)
	listening    bool
	closed       bool
	// holdListen keeps ListenOnDemand recording until ctx is cancelled, then
	// lets it wind down for a moment like a real capture device.
	holdListen bool
}

func (m *MockSTTProvider) ListenOnDemand(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.listenCalls++
	hold, text, err := m.holdListen, m.onDemandText, m.onDemandErr
	m.mu.Unlock()

	if hold {
		m.log.add("listen stt#%d", m.id)
		<-ctx.Done()
		time.Sleep(30 * time.Millisecond)
		m.log.add("listen done stt#%d", m.id)
		return "", ctx.Err()
	}
	return text, err
}

func (m *MockSTTProvider) StartBackgroundListening(ctx context.Context, onText func(string), onStopped func(error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.starts++
	m.onText = onText
	m.onStopped = onStopped
	m.listening = true
	m.log.add("start stt#%d", m.id)
	return nil
}

func (m *MockSTTProvider) StopBackgroundListening() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.listening {
		return
	}
	m.onText = nil
	m.onStopped = nil
	m.listening = false
	m.log.add("stop stt#%d", m.id)
}

func (m *MockSTTProvider) IsListening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

func (m *MockSTTProvider) Name() string { return "MockSTT" }

func (m *MockSTTProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.log.add("close stt#%d", m.id)
	return nil
}

// hear simulates the audio goroutine delivering a transcription.
func (m *MockSTTProvider) hear(text string) {
	m.mu.Lock()
	cb := m.onText
	m.mu.Unlock()
	if cb != nil {
		cb(text)
	}
}

// loseMicrophone ends background listening from the audio side, as when the
// device disappears.
func (m *MockSTTProvider) loseMicrophone(err error) {
	m.mu.Lock()
	stopped := m.onStopped
	m.onText, m.onStopped = nil, nil
	m.listening = false
	m.mu.Unlock()
	if stopped != nil {
		stopped(err)
	}
}

func (m *MockSTTProvider) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *MockSTTProvider) callback() func(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onText
}

func (m *MockSTTProvider) ListenCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listenCalls
}

type MockContextProvider struct {
	title string
	err   error
}

func (m *MockContextProvider) ActiveWindowTitle(ctx context.Context) (string, error) {
	return m.title, m.err
}

var errMock = errors.New("mock failure")

var fixedNow = time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)

type harness struct {
	o    *Orchestrator
	ai   *MockAIProvider
	tts  *MockTTSProvider
	log  *callLog
	mu   sync.Mutex
	stts []*MockSTTProvider
	// configure, when set, adjusts every new STT handle
	configure func(*MockSTTProvider)
}

func testSettings() settings.Settings {
	s := settings.Defaults()
	s.Voice.Enabled = false
	s.Proactivity.Enabled = false
	s.ContextAwareness.Enabled = false
	s.AudioInput.AlwaysOnListening = false
	s.Personality.SystemPrompt = "You are Companion."
	return s
}

func newHarness(t *testing.T, s settings.Settings, opts ...func(*harness)) *harness {
	return newHarnessWithContext(t, s, nil, opts...)
}

func newHarnessWithContext(t *testing.T, s settings.Settings, cp ContextProvider, opts ...func(*harness)) *harness {
	t.Helper()
	h := &harness{
		ai:  &MockAIProvider{reply: "hi there"},
		tts: &MockTTSProvider{ok: true},
		log: &callLog{},
	}
	for _, opt := range opts {
		opt(h)
	}

	factory := func(settings.Settings) Providers {
		h.mu.Lock()
		stt := &MockSTTProvider{id: len(h.stts) + 1, log: h.log}
		if h.configure != nil {
			h.configure(stt)
		}
		h.stts = append(h.stts, stt)
		h.mu.Unlock()
		h.log.add("build #%d", stt.id)
		return Providers{AI: h.ai, TTS: h.tts, STT: stt}
	}

	cfg := DefaultConfig()
	cfg.IntervalUnit = time.Millisecond
	cfg.Now = func() time.Time { return fixedNow }
	h.o = NewWithLogger(s, factory, cp, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return h
}

func (h *harness) stt() *MockSTTProvider {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stts[len(h.stts)-1]
}

func (h *harness) sttAt(i int) *MockSTTProvider {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stts[i]
}

func (h *harness) state(t *testing.T) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := h.o.Snapshot(ctx)
	require.NoError(t, err)
	return st
}

func (h *harness) waitIdle(t *testing.T) State {
	t.Helper()
	var st State
	require.Eventually(t, func() bool {
		st = h.state(t)
		return !st.Busy && st.Pending == 0
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func nextEvent(t *testing.T, o *Orchestrator) OrchestratorEvent {
	t.Helper()
	select {
	case ev, ok := <-o.Events():
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return OrchestratorEvent{}
}

// waitEvent returns every event up to and including the first of type want.
func waitEvent(t *testing.T, o *Orchestrator, want EventType) []OrchestratorEvent {
	t.Helper()
	var seen []OrchestratorEvent
	for {
		ev := nextEvent(t, o)
		seen = append(seen, ev)
		if ev.Type == want {
			return seen
		}
	}
}

func drainEvents(o *Orchestrator) []OrchestratorEvent {
	var out []OrchestratorEvent
	for {
		select {
		case ev := <-o.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []OrchestratorEvent) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}
