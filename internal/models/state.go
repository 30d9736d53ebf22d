package models

import (
	"github.com/cloudwego/eino/schema"
)

// ConversationState is the per-request message history of one analysis run.
// It starts with a single user message and is only ever appended to.
type ConversationState struct {
	Ticker   string            `json:"ticker"`
	Question string            `json:"question"`
	Messages []*schema.Message `json:"messages"`
}

func NewConversationState(ticker, question string) *ConversationState {
	return &ConversationState{
		Ticker:   ticker,
		Question: question,
		Messages: []*schema.Message{
			schema.UserMessage(question),
		},
	}
}

func (s *ConversationState) Append(msgs ...*schema.Message) {
	s.Messages = append(s.Messages, msgs...)
}

func (s *ConversationState) LastMessage() *schema.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// LastAIMessage returns the newest assistant message, or nil.
func (s *ConversationState) LastAIMessage() *schema.Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == schema.Assistant {
			return s.Messages[i]
		}
	}
	return nil
}

// Answer is the content of the final assistant message.
func (s *ConversationState) Answer() string {
	if msg := s.LastAIMessage(); msg != nil {
		return msg.Content
	}
	return ""
}

// ToolRounds counts assistant turns that requested tools.
func (s *ConversationState) ToolRounds() int {
	n := 0
	for _, msg := range s.Messages {
		if msg.Role == schema.Assistant && len(msg.ToolCalls) > 0 {
			n++
		}
	}
	return n
}

func (s *ConversationState) HasToolResults() bool {
	for _, msg := range s.Messages {
		if msg.Role == schema.Tool {
			return true
		}
	}
	return false
}
