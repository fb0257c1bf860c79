package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// ConversationSession is the message history since the last reset. It is
// owned by the orchestrator loop and is not safe for concurrent use.
type ConversationSession struct {
	ID            string
	Context       []Message
	LastUser      string
	LastAssistant string
	MaxMessages   int
}

func NewConversationSession(maxMessages int) *ConversationSession {
	return &ConversationSession{
		ID:          uuid.NewString(),
		Context:     []Message{},
		MaxMessages: maxMessages,
	}
}

func (s *ConversationSession) AddMessage(role Role, content string, at time.Time) {
	s.Context = append(s.Context, Message{Role: role, Content: content, Timestamp: at})
	if s.MaxMessages > 0 && len(s.Context) > s.MaxMessages {
		s.Context = s.Context[len(s.Context)-s.MaxMessages:]
	}
	switch role {
	case RoleUser:
		s.LastUser = content
	case RoleAssistant:
		s.LastAssistant = content
	}
}

// Reset starts a new session: the history is cleared and a fresh ID is
// assigned.
func (s *ConversationSession) Reset() {
	s.ID = uuid.NewString()
	s.Context = []Message{}
	s.LastUser = ""
	s.LastAssistant = ""
}

// DropLast removes the newest message if it has the given role.
func (s *ConversationSession) DropLast(role Role) bool {
	n := len(s.Context)
	if n == 0 || s.Context[n-1].Role != role {
		return false
	}
	s.Context = s.Context[:n-1]
	return true
}

func (s *ConversationSession) Empty() bool {
	return len(s.Context) == 0
}

func (s *ConversationSession) GetContextCopy() []Message {
	contextCopy := make([]Message, len(s.Context))
	copy(contextCopy, s.Context)
	return contextCopy
}
