package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	// GreetingPrompt drives the first proactive turn of the process.
	GreetingPrompt = "Start with a brief, friendly greeting appropriate for the time of day. Then, based on the context (like the app they're using), offer a helpful tip or an encouraging thought."

	// AmbientPrompt drives every later proactive turn.
	AmbientPrompt = "Based on the context I've provided in the system prompt (current app, time, etc.), offer a brief, relevant, and helpful tip, a fun fact, or an encouraging thought. Do NOT include a greeting like 'hello' or 'good morning'."

	// CouldNotTranscribe is shown when on-demand listening heard nothing usable.
	CouldNotTranscribe = "Sorry, I didn't catch that. Please try again."

	// UnknownContext replaces the window description when it cannot be read.
	UnknownContext = "Could not determine the user's current application."

	timestampLayout = "2006-01-02 15:04:05"
)

func buildSystemPrompt(personality string, now time.Time, windowContext string) string {
	var b strings.Builder
	b.WriteString(personality)
	b.WriteString("\n\nCurrent date and time is: ")
	b.WriteString(now.Format(timestampLayout))
	b.WriteString(".")
	if windowContext != "" {
		b.WriteString("\n\n")
		b.WriteString(windowContext)
	}
	return b.String()
}

// describeActiveWindow never fails; any problem degrades to UnknownContext.
func describeActiveWindow(ctx context.Context, cp ContextProvider, logger Logger) string {
	if cp == nil {
		return UnknownContext
	}
	title, err := cp.ActiveWindowTitle(ctx)
	if err != nil {
		logger.Debug("could not get active window", "error", err)
		return UnknownContext
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return UnknownContext
	}
	return fmt.Sprintf("The user is currently in an application with the window title: '%s'.", title)
}
