package chat

import (
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three roles the completion service understands.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// Message is a single conversation entry. Messages are never edited after they are
// appended; a new turn always adds new messages.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// NormalizeAssistantContent strips the leading newlines the completion service tends to emit.
func NormalizeAssistantContent(content string) string {
	return strings.TrimLeft(content, "\r\n")
}

// Source is a retrieved chunk reference attached to a RAG answer.
type Source struct {
	Source          string `json:"source" yaml:"source"`
	StartPage       int    `json:"start_page" yaml:"start_page"`
	EndPage         int    `json:"end_page" yaml:"end_page"`
	ChunkID         int    `json:"chunk_id" yaml:"chunk_id"`
	ChunkLength     int    `json:"chunk_length" yaml:"chunk_length"`
	TotalChunkPages int    `json:"total_chunk_pages" yaml:"total_chunk_pages"`
}

// Exchange describes one completed request/response round trip.
type Exchange struct {
	ID             string    `json:"id"`
	RequestWindow  []Message `json:"request_window"`
	Response       Message   `json:"response"`
	Sources        []Source  `json:"sources,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
}
