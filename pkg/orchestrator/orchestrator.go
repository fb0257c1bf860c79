package orchestrator

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lokutor-ai/companion/pkg/settings"
)

const fallbackReply = "Sorry, something went wrong while generating a reply."

type inputSource string

const (
	sourceText       inputSource = "text"
	sourceVoice      inputSource = "voice"
	sourceBackground inputSource = "background"
)

// Commands processed by the loop. Results from worker goroutines carry the
// provider generation they were started under.
type (
	setEnabledCmd     struct{ on bool }
	submitTextCmd     struct{ text string }
	submitVoiceCmd    struct{}
	tickCmd           struct{}
	applySettingsCmd  struct{ s settings.Settings }
	snapshotCmd       struct{ reply chan State }
	backgroundTextCmd struct {
		gen  uint64
		text string
	}
	backgroundStoppedCmd struct {
		gen, seq uint64
		err      error
	}
	voiceResultCmd struct {
		gen, id uint64
		text    string
		err     error
	}
	aiReplyCmd struct {
		gen, turnID uint64
		reply       string
	}
	ttsDoneCmd struct {
		gen, turnID uint64
		ok          bool
	}
)

type turn struct {
	id  uint64
	gen uint64
}

type pendingInput struct {
	tick   bool
	text   string
	source inputSource
}

// Orchestrator runs the companion's conversation state machine. Every state
// change happens on the goroutine executing Run; the exported methods only
// enqueue commands, so they are safe to call from any goroutine.
type Orchestrator struct {
	cfg       Config
	logger    Logger
	factory   ProviderFactory
	windowCtx ContextProvider

	cmds    chan interface{}
	events  chan OrchestratorEvent
	done    chan struct{}
	running atomic.Bool

	// Loop-owned state below.
	runCtx     context.Context
	settings   settings.Settings
	providers  Providers
	generation uint64
	genCtx     context.Context
	genCancel  context.CancelFunc
	bgCancel   context.CancelFunc
	bgSeq      uint64

	// micLost is set when background listening ended by itself; it stays
	// off until the next provider generation.
	micLost bool

	listenCancel context.CancelFunc
	listenDone   chan struct{}

	session    *ConversationSession
	enabled    bool
	hasGreeted bool
	listening  ListeningState
	health     TTSHealth
	scheduler  *Scheduler

	turn      *turn
	turnSeq   uint64
	listenSeq uint64
	pending   []pendingInput
}

// New creates an orchestrator and builds its first provider generation.
func New(s settings.Settings, factory ProviderFactory, config Config) *Orchestrator {
	return NewWithLogger(s, factory, nil, config, &NoOpLogger{})
}

// NewWithLogger creates an orchestrator with a foreground window source and
// a custom logger. Either may be nil.
func NewWithLogger(s settings.Settings, factory ProviderFactory, windowCtx ContextProvider, config Config, logger Logger) *Orchestrator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	defaults := DefaultConfig()
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = defaults.EventBuffer
	}
	if config.IntervalUnit <= 0 {
		config.IntervalUnit = defaults.IntervalUnit
	}
	if config.AITimeout <= 0 {
		config.AITimeout = defaults.AITimeout
	}
	if config.TTSTimeout <= 0 {
		config.TTSTimeout = defaults.TTSTimeout
	}
	if config.STTTimeout <= 0 {
		config.STTTimeout = defaults.STTTimeout
	}
	if config.ContextTimeout <= 0 {
		config.ContextTimeout = defaults.ContextTimeout
	}

	s = s.Clone()
	o := &Orchestrator{
		cfg:        config,
		logger:     logger,
		factory:    factory,
		windowCtx:  windowCtx,
		cmds:       make(chan interface{}, 64),
		events:     make(chan OrchestratorEvent, config.EventBuffer),
		done:       make(chan struct{}),
		settings:   s,
		generation: 1,
		session:    NewConversationSession(config.MaxContextMessages),
		enabled:    true,
		scheduler:  NewScheduler(),
	}
	o.providers = o.build(s)
	return o
}

// Events returns the outbound notification channel. It is closed when Run
// returns.
func (o *Orchestrator) Events() <-chan OrchestratorEvent {
	return o.events
}

// SetEnabled turns the companion on or off.
func (o *Orchestrator) SetEnabled(on bool) {
	o.post(setEnabledCmd{on: on})
}

// SubmitText sends a typed user message.
func (o *Orchestrator) SubmitText(text string) {
	o.post(submitTextCmd{text: text})
}

// SubmitVoice performs a push-to-talk listen and submits the transcription.
func (o *Orchestrator) SubmitVoice() {
	o.post(submitVoiceCmd{})
}

// TriggerProactiveTick runs a proactive turn now, exactly as if the
// scheduler had fired.
func (o *Orchestrator) TriggerProactiveTick() {
	o.post(tickCmd{})
}

// ApplySettings hot-swaps the settings snapshot and every provider handle.
func (o *Orchestrator) ApplySettings(s settings.Settings) {
	o.post(applySettingsCmd{s: s.Clone()})
}

// Snapshot returns a copy of the current state, ordered after every command
// posted before it.
func (o *Orchestrator) Snapshot(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	select {
	case o.cmds <- snapshotCmd{reply: reply}:
	case <-o.done:
		return State{}, ErrStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-o.done:
		return State{}, ErrStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// Run processes commands until ctx is cancelled. On return the scheduler and
// background listening are stopped, provider handles are closed and the
// event channel is closed.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(o.done)

	o.runCtx = ctx
	o.genCtx, o.genCancel = context.WithCancel(ctx)
	defer o.shutdown()

	o.logger.Info("orchestrator started", "ai", nameOf(o.providers.AI), "tts", nameOf(o.providers.TTS), "stt", nameOf(o.providers.STT))
	o.startScheduler()
	o.startBackground()

	for {
		// Ticks are only taken while nothing is in flight, so proactive turns
		// never overlap and an undelivered tick can still be cancelled.
		var ticks <-chan Tick
		if o.turn == nil && len(o.pending) == 0 {
			ticks = o.scheduler.C()
		}

		select {
		case <-ctx.Done():
			return nil
		case c := <-o.cmds:
			o.handle(c)
		case <-ticks:
			o.handleTick()
		}
	}
}

func (o *Orchestrator) handle(c interface{}) {
	switch c := c.(type) {
	case setEnabledCmd:
		o.handleSetEnabled(c.on)
	case submitTextCmd:
		o.handleSubmitText(c.text, sourceText)
	case submitVoiceCmd:
		o.handleSubmitVoice()
	case tickCmd:
		o.handleTick()
	case applySettingsCmd:
		o.handleApplySettings(c.s)
	case snapshotCmd:
		c.reply <- o.snapshot()
	case backgroundTextCmd:
		o.handleBackgroundText(c)
	case backgroundStoppedCmd:
		o.handleBackgroundStopped(c)
	case voiceResultCmd:
		o.handleVoiceResult(c)
	case aiReplyCmd:
		o.handleAIReply(c)
	case ttsDoneCmd:
		o.handleTTSDone(c)
	}
}

func (o *Orchestrator) handleSetEnabled(on bool) {
	if on == o.enabled {
		return
	}
	o.enabled = on
	o.logger.Info("companion state changed", "enabled", on)

	if !on {
		o.scheduler.Stop()
		o.stopBackground()
		if n := len(o.pending); n > 0 {
			o.logger.Debug("dropping queued input", "count", n)
			o.pending = nil
		}
		return
	}
	o.startScheduler()
	o.startBackground()
}

func (o *Orchestrator) handleSubmitText(text string, source inputSource) {
	if !o.enabled {
		o.logger.Debug("companion is off, dropping message", "source", source)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if o.turn != nil {
		o.pending = append(o.pending, pendingInput{text: text, source: source})
		o.logger.Debug("turn in flight, queueing message", "source", source, "queued", len(o.pending))
		return
	}

	o.logger.Info("processing user message", "source", source, "length", len(text))
	if o.session.Empty() {
		o.session.Reset()
		o.emit(NewSessionStarted, nil)
	}
	o.startTurn(text, false)
}

func (o *Orchestrator) handleBackgroundText(c backgroundTextCmd) {
	if c.gen != o.generation {
		o.logger.Debug("discarding transcription from superseded listener", "generation", c.gen)
		return
	}
	if o.listening != BackgroundActive {
		o.logger.Debug("discarding background transcription, listener no longer active")
		return
	}
	o.handleSubmitText(c.text, sourceBackground)
}

func (o *Orchestrator) handleSubmitVoice() {
	if !o.enabled {
		return
	}
	switch o.listening {
	case BackgroundActive:
		o.logger.Info("push-to-talk rejected, background listening owns the microphone")
		return
	case OnDemandActive:
		o.logger.Info("push-to-talk rejected, already listening")
		return
	}

	stt := o.providers.STT
	o.listenSeq++
	id, gen := o.listenSeq, o.generation
	o.listening = OnDemandActive
	o.emit(ListeningStatus, true)

	listenCtx, listenCancel := context.WithCancel(o.genCtx)
	done := make(chan struct{})
	o.listenCancel, o.listenDone = listenCancel, done

	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(listenCtx, o.cfg.STTTimeout)
		text, err := o.listenOnce(ctx, stt)
		cancel()
		select {
		case o.cmds <- voiceResultCmd{gen: gen, id: id, text: text, err: err}:
		case <-listenCtx.Done():
		case <-o.done:
		}
	}()
}

// stopOnDemand cancels a push-to-talk listen and waits until the worker has
// returned from the STT call, so the microphone is released before the
// caller goes on.
func (o *Orchestrator) stopOnDemand() {
	if o.listenCancel == nil {
		return
	}
	o.listenCancel()
	<-o.listenDone
	o.listenCancel, o.listenDone = nil, nil
	if o.listening == OnDemandActive {
		o.listening = Idle
		o.logger.Info("push-to-talk cancelled")
		o.emit(ListeningStatus, false)
	}
}

func (o *Orchestrator) handleVoiceResult(c voiceResultCmd) {
	if c.gen != o.generation || c.id != o.listenSeq || o.listening != OnDemandActive {
		o.logger.Debug("discarding stale on-demand transcription", "generation", c.gen)
		return
	}
	o.listening = Idle
	if o.listenCancel != nil {
		o.listenCancel()
		o.listenCancel, o.listenDone = nil, nil
	}
	o.emit(ListeningStatus, false)
	defer o.startBackground()

	if c.err != nil {
		o.logger.Info("on-demand transcription failed", "error", c.err)
	}
	if !o.enabled {
		return
	}
	text := strings.TrimSpace(c.text)
	if text == "" {
		o.emit(MessageReady, Message{Role: RoleAssistant, Content: CouldNotTranscribe, Timestamp: o.cfg.Now()})
		return
	}
	o.handleSubmitText(text, sourceVoice)
}

func (o *Orchestrator) handleTick() {
	if !o.enabled {
		return
	}
	if o.turn != nil {
		o.pending = append(o.pending, pendingInput{tick: true})
		return
	}

	o.session.Reset()
	o.emit(NewSessionStarted, nil)

	prompt := AmbientPrompt
	if !o.hasGreeted {
		prompt = GreetingPrompt
		o.hasGreeted = true
		o.logger.Info("proactive turn: sending greeting prompt", "sessionID", o.session.ID)
	} else {
		o.logger.Info("proactive turn: sending ambient prompt", "sessionID", o.session.ID)
	}
	o.startTurn(prompt, true)
}

// startTurn appends the prompt and hands the AI call to a worker goroutine.
// The loop stays responsive while the call runs.
func (o *Orchestrator) startTurn(prompt string, proactive bool) {
	now := o.cfg.Now()
	o.session.AddMessage(RoleUser, prompt, now)
	history := o.session.GetContextCopy()

	o.turnSeq++
	t := &turn{id: o.turnSeq, gen: o.generation}
	o.turn = t

	ai := o.providers.AI
	personality := o.settings.SystemPrompt()
	withContext := proactive && o.settings.ContextAwareness.Enabled
	ctx := o.genCtx

	go func() {
		windowContext := ""
		if withContext {
			cctx, cancel := context.WithTimeout(ctx, o.cfg.ContextTimeout)
			windowContext = describeActiveWindow(cctx, o.windowCtx, o.logger)
			cancel()
			o.logger.Debug("context awareness", "context", windowContext)
		}

		messages := make([]Message, 0, len(history)+1)
		messages = append(messages, Message{
			Role:      RoleSystem,
			Content:   buildSystemPrompt(personality, now, windowContext),
			Timestamp: now,
		})
		messages = append(messages, history...)

		actx, cancel := context.WithTimeout(ctx, o.cfg.AITimeout)
		reply := o.respond(actx, ai, messages)
		cancel()
		o.post(aiReplyCmd{gen: t.gen, turnID: t.id, reply: reply})
	}()
}

func (o *Orchestrator) handleAIReply(c aiReplyCmd) {
	t := o.turn
	if t == nil || t.id != c.turnID {
		return
	}
	if c.gen != o.generation {
		// The prompt stays unanswered; drop it so the next request does not
		// carry two user messages in a row.
		o.session.DropLast(RoleUser)
		o.logger.Info("discarding reply from superseded providers", "generation", c.gen)
		o.finishTurn()
		return
	}

	now := o.cfg.Now()
	o.session.AddMessage(RoleAssistant, c.reply, now)
	o.logger.Info("reply ready", "sessionID", o.session.ID, "length", len(c.reply))
	o.emit(MessageReady, Message{Role: RoleAssistant, Content: c.reply, Timestamp: now})

	switch {
	case !o.settings.Voice.Enabled:
		o.finishTurn()
		return
	case !o.enabled:
		o.logger.Debug("companion turned off mid-turn, skipping speech")
		o.finishTurn()
		return
	case o.health == Degraded:
		o.logger.Debug("speech skipped, TTS is disabled after a previous error")
		o.finishTurn()
		return
	case o.providers.TTS == nil:
		o.finishTurn()
		return
	}

	tts := o.providers.TTS
	ctx, cancel := context.WithTimeout(o.genCtx, o.cfg.TTSTimeout)
	go func() {
		defer cancel()
		ok := o.speak(ctx, tts, c.reply)
		o.post(ttsDoneCmd{gen: t.gen, turnID: t.id, ok: ok})
	}()
}

func (o *Orchestrator) handleTTSDone(c ttsDoneCmd) {
	t := o.turn
	if t == nil || t.id != c.turnID {
		return
	}
	if c.gen == o.generation && !c.ok && o.health == Healthy {
		o.health = Degraded
		o.logger.Warn("speech synthesis failed, disabling TTS until settings change", "provider", nameOf(o.providers.TTS))
		o.emit(TTSHealthChanged, false)
	}
	o.finishTurn()
}

func (o *Orchestrator) finishTurn() {
	o.turn = nil
	for o.turn == nil && len(o.pending) > 0 {
		next := o.pending[0]
		o.pending = o.pending[1:]
		if next.tick {
			o.handleTick()
		} else {
			o.handleSubmitText(next.text, next.source)
		}
	}
}

func (o *Orchestrator) startScheduler() {
	if !o.enabled || !o.settings.Proactivity.Enabled {
		o.scheduler.Stop()
		return
	}
	interval := time.Duration(o.settings.ProactiveInterval()) * o.cfg.IntervalUnit
	o.scheduler.Start(interval)
	o.logger.Info("proactive timer started", "interval", interval)
}

func (o *Orchestrator) startBackground() {
	if !o.enabled || !o.settings.AudioInput.AlwaysOnListening || o.listening != Idle || o.micLost {
		return
	}
	stt := o.providers.STT
	if stt == nil {
		return
	}

	o.bgSeq++
	gen, seq := o.generation, o.bgSeq
	bgCtx, cancel := context.WithCancel(o.genCtx)
	err := stt.StartBackgroundListening(bgCtx, func(text string) {
		select {
		case o.cmds <- backgroundTextCmd{gen: gen, text: text}:
		case <-bgCtx.Done():
		case <-o.done:
		}
	}, func(err error) {
		if bgCtx.Err() != nil {
			return
		}
		select {
		case o.cmds <- backgroundStoppedCmd{gen: gen, seq: seq, err: err}:
		case <-bgCtx.Done():
		case <-o.done:
		}
	})
	if err != nil {
		cancel()
		o.logger.Warn("could not start background listening", "error", err)
		return
	}
	o.bgCancel = cancel
	o.listening = BackgroundActive
	o.logger.Info("background listening started", "generation", gen)
	o.emit(ListeningStatus, true)
}

// handleBackgroundStopped records that the listener gave up on its own. The
// microphone is then free for push-to-talk, which reports the failure to
// the user instead of being rejected.
func (o *Orchestrator) handleBackgroundStopped(c backgroundStoppedCmd) {
	if c.gen != o.generation || c.seq != o.bgSeq || o.listening != BackgroundActive {
		return
	}
	if o.bgCancel != nil {
		o.bgCancel()
		o.bgCancel = nil
	}
	o.micLost = true
	o.listening = Idle
	o.logger.Warn("background listening ended", "error", c.err)
	o.emit(ListeningStatus, false)
}

// stopBackground cancels the callback context first so a callback blocked
// on the command queue gives up, then waits for the listener to stop.
func (o *Orchestrator) stopBackground() {
	if o.listening != BackgroundActive {
		return
	}
	if o.bgCancel != nil {
		o.bgCancel()
		o.bgCancel = nil
	}
	if o.providers.STT != nil {
		o.providers.STT.StopBackgroundListening()
	}
	o.listening = Idle
	o.logger.Info("background listening stopped")
	o.emit(ListeningStatus, false)
}

func (o *Orchestrator) shutdown() {
	o.scheduler.Stop()
	o.stopBackground()
	o.stopOnDemand()
	o.genCancel()
	o.closeProviders(o.providers)
	close(o.events)
	o.logger.Info("orchestrator stopped")
}

func (o *Orchestrator) snapshot() State {
	return State{
		SessionID:  o.session.ID,
		Session:    o.session.GetContextCopy(),
		Enabled:    o.enabled,
		HasGreeted: o.hasGreeted,
		Listening:  o.listening,
		TTSHealth:  o.health,
		Generation: o.generation,
		Busy:       o.turn != nil,
		Pending:    len(o.pending),
		Settings:   o.settings.Clone(),
	}
}

func (o *Orchestrator) post(c interface{}) bool {
	select {
	case o.cmds <- c:
		return true
	case <-o.done:
		return false
	}
}

// emit never drops a notification; it only gives up when Run is ending.
func (o *Orchestrator) emit(eventType EventType, data interface{}) {
	event := OrchestratorEvent{
		Type:      eventType,
		SessionID: o.session.ID,
		Data:      data,
	}
	select {
	case o.events <- event:
	case <-o.runCtx.Done():
	}
}

func (o *Orchestrator) respond(ctx context.Context, ai AIProvider, messages []Message) (reply string) {
	if ai == nil {
		return fallbackReply
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("AI provider panicked", "provider", ai.Name(), "panic", r)
			reply = fallbackReply
		}
	}()
	reply = strings.TrimSpace(ai.GetResponse(ctx, messages))
	if reply == "" {
		reply = fallbackReply
	}
	return reply
}

func (o *Orchestrator) speak(ctx context.Context, tts TTSProvider, text string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("TTS provider panicked", "provider", tts.Name(), "panic", r)
			ok = false
		}
	}()
	return tts.Speak(ctx, text)
}

func (o *Orchestrator) listenOnce(ctx context.Context, stt STTProvider) (text string, err error) {
	if stt == nil {
		return "", ErrNilProvider
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("STT provider panicked", "provider", stt.Name(), "panic", r)
			text, err = "", ErrEmptyTranscription
		}
	}()
	return stt.ListenOnDemand(ctx)
}

func (o *Orchestrator) closeProviders(p Providers) {
	for _, h := range []interface{}{p.AI, p.TTS, p.STT} {
		if c, ok := h.(io.Closer); ok {
			if err := c.Close(); err != nil {
				o.logger.Warn("closing provider failed", "error", err)
			}
		}
	}
}

func nameOf(p interface{ Name() string }) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}
