package events

import (
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
)

type EventType string

const (
	EventTurnStarted     EventType = "turn-started"
	EventTurnCompleted   EventType = "turn-completed"
	EventTurnFailed      EventType = "turn-failed"
	EventSessionReset    EventType = "session-reset"
	EventPromptChanged   EventType = "prompt-changed"
	EventDocsListed      EventType = "docs-listed"
	EventDocUploading    EventType = "doc-uploading"
	EventDocUploaded     EventType = "doc-uploaded"
	EventDocDeleting     EventType = "doc-deleting"
	EventDocDeleted      EventType = "doc-deleted"
	EventDocFailed       EventType = "doc-failed"
	EventDocsListFailed  EventType = "docs-list-failed"
	EventWatchedFileSeen EventType = "watched-file-seen"
)

// Event is the payload published to presentation subscribers. Only the fields relevant
// to the event type are set.
type Event struct {
	Type           EventType `json:"type"`
	ExchangeID     string    `json:"exchange_id,omitempty"`
	Filename       string    `json:"filename,omitempty"`
	Kind           string    `json:"kind,omitempty"`
	Message        string    `json:"message,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds,omitempty"`
	Count          int       `json:"count,omitempty"`
	Time           time.Time `json:"time"`
}

func NewEvent(t EventType) Event {
	return Event{Type: t, Time: time.Now()}
}

// Decode parses the payload of a message published by a PublisherManager.
func Decode(msg *message.Message) (Event, error) {
	var e Event
	err := json.Unmarshal(msg.Payload, &e)
	return e, err
}

// Publisher is what state-owning components publish their changes through.
type Publisher interface {
	PublishBlind(payload interface{})
}

type NopPublisher struct{}

func (NopPublisher) PublishBlind(interface{}) {}

var _ Publisher = NopPublisher{}
