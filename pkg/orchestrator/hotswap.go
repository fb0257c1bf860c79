package orchestrator

import (
	"context"

	"github.com/lokutor-ai/companion/pkg/settings"
)

// handleApplySettings replaces the settings snapshot and every provider
// handle. It runs as a single loop command, so no other event observes a
// half-swapped state. The old listener and any push-to-talk listen are
// fully stopped before their STT handle is discarded. Anything else still
// in flight on the old generation is recognised by its generation number
// and dropped when it reports back.
func (o *Orchestrator) handleApplySettings(s settings.Settings) {
	next := o.generation + 1
	o.logger.Info("applying settings", "generation", next)

	// 1. Release the microphone held by the old handle. Both calls return
	// only once the old STT handle is no longer recording.
	o.stopBackground()
	o.stopOnDemand()

	// 2.
	o.scheduler.Stop()

	// 3.
	o.settings = s

	// 4. The circuit breaker only ever closes here.
	if o.health != Healthy {
		o.logger.Info("TTS re-enabled by settings update")
	}
	o.health = Healthy
	o.emit(TTSHealthChanged, true)

	// 5.
	o.genCancel()
	o.closeProviders(o.providers)
	o.generation = next
	o.micLost = false
	o.genCtx, o.genCancel = context.WithCancel(o.runCtx)
	o.providers = o.build(s)

	// 6.
	o.startScheduler()

	// 7.
	o.startBackground()
}

func (o *Orchestrator) build(s settings.Settings) Providers {
	if o.factory == nil {
		return Providers{}
	}
	p := o.factory(s)
	if p.AI == nil || p.TTS == nil || p.STT == nil {
		o.logger.Warn("provider factory returned an incomplete set", "error", ErrNilProvider)
	}
	return p
}
