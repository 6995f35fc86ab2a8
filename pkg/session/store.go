// Package session owns the conversation state: the system prompt, the message history and
// the display state of the latest exchange. Every mutation is written through to a
// kvstore.Store before the mutating call returns.
package session

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/go-go-golems/ragchat/pkg/events"
	"github.com/go-go-golems/ragchat/pkg/kvstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	HistoryKey      = "chat_history"
	SystemPromptKey = "system_prompt"

	DefaultSystemPrompt = "You are an expert assistant. Respond with a concise answer."
)

// Latest is the display state of the most recent exchange. It is cleared when a new turn
// starts and when the history is reset.
type Latest struct {
	ExchangeID     string        `json:"exchange_id,omitempty"`
	Sources        []chat.Source `json:"sources,omitempty"`
	ElapsedSeconds *float64      `json:"elapsed_seconds,omitempty"`
	Failure        *chat.Failure `json:"-"`
}

type Store struct {
	kv            kvstore.Store
	defaultPrompt string
	publisher     events.Publisher

	mu      sync.Mutex
	session chat.Session
	latest  Latest

	// last values handed to kv, so rewriting identical state is skipped
	writtenHistory string
	writtenPrompt  string
	written        bool
}

type Option func(*Store)

func WithDefaultSystemPrompt(prompt string) Option {
	return func(s *Store) {
		if p := strings.TrimSpace(prompt); p != "" {
			s.defaultPrompt = p
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Store) {
		if p != nil {
			s.publisher = p
		}
	}
}

// NewStore creates a store backed by kv and loads the persisted session from it.
func NewStore(kv kvstore.Store, options ...Option) *Store {
	s := &Store{
		kv:            kv,
		defaultPrompt: DefaultSystemPrompt,
		publisher:     events.NopPublisher{},
	}
	for _, o := range options {
		o(s)
	}
	s.Load()
	return s
}

func (s *Store) DefaultSystemPrompt() string {
	return s.defaultPrompt
}

// Load reads the session from durable storage. A missing or unparseable history falls
// back to a fresh session; the problem is logged and never returned.
func (s *Store) Load() chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompt, promptOK := s.readPrompt()
	history, historyOK := s.readHistory()

	if !promptOK {
		prompt = ""
		if historyOK && len(history) > 0 && history[0].Role == chat.RoleSystem {
			prompt = strings.TrimSpace(history[0].Content)
		}
		if prompt == "" {
			prompt = s.defaultPrompt
		}
	}

	sess := chat.NewSession(prompt)
	if historyOK {
		for _, m := range history {
			if m.Role == chat.RoleSystem {
				continue
			}
			sess.History = append(sess.History, m)
		}
	}

	s.session = sess
	s.latest = Latest{}

	log.Debug().
		Int("messages", len(sess.History)).
		Bool("restored", historyOK).
		Msg("Loaded chat session")

	return sess.Clone()
}

func (s *Store) readPrompt() (string, bool) {
	v, ok, err := s.kv.Get(SystemPromptKey)
	if err != nil {
		log.Warn().Err(err).Str("key", SystemPromptKey).Msg("could not read system prompt, using default")
		return "", false
	}
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

func (s *Store) readHistory() ([]chat.Message, bool) {
	v, ok, err := s.kv.Get(HistoryKey)
	if err != nil {
		log.Warn().Err(err).Str("key", HistoryKey).Msg("could not read chat history, starting fresh")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	history, err := decodeHistory(v)
	if err != nil {
		f := chat.NewFailure(chat.PersistedStateCorrupt, "stored chat history is not valid", err)
		log.Warn().Err(f).Str("key", HistoryKey).Msg("discarding persisted chat history")
		return nil, false
	}
	return history, true
}

func decodeHistory(v string) ([]chat.Message, error) {
	var history []chat.Message
	if err := json.Unmarshal([]byte(v), &history); err != nil {
		return nil, err
	}
	if history == nil {
		return nil, errors.New("history is not a list")
	}
	for i, m := range history {
		if !m.Role.Valid() {
			return nil, errors.Errorf("message %d has invalid role %q", i, m.Role)
		}
		if m.Role == chat.RoleSystem && i != 0 {
			return nil, errors.Errorf("message %d is a second system message", i)
		}
	}
	return history, nil
}

// Session returns a copy of the current session.
func (s *Store) Session() chat.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

// Visible returns the history without the system message.
func (s *Store) Visible() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Visible()
}

func (s *Store) SystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.SystemPrompt
}

// SetSystemPrompt replaces the system prompt. Empty input selects the default prompt.
// Past turns are left alone; the new prompt is used for the next window.
func (s *Store) SetSystemPrompt(text string) error {
	prompt := strings.TrimSpace(text)
	if prompt == "" {
		prompt = s.defaultPrompt
	}

	s.mu.Lock()
	next := s.session.Clone()
	next.SystemPrompt = prompt
	err := s.commitLocked(next)
	s.mu.Unlock()

	e := events.NewEvent(events.EventPromptChanged)
	e.Message = prompt
	s.publisher.PublishBlind(e)

	return err
}

// PushUserMessage appends a user message and persists it immediately, returning the new
// session. The in-memory state is updated even if the write fails.
func (s *Store) PushUserMessage(content string) (chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.session.AppendUserMessage(content)
	err := s.commitLocked(next)
	return next.Clone(), err
}

// ApplyAssistantMessage appends the assistant reply, stripped of leading newlines.
func (s *Store) ApplyAssistantMessage(m chat.Message) error {
	if m.Role != chat.RoleAssistant {
		return errors.Errorf("expected assistant message, got %q", m.Role)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(s.session.AppendAssistantMessage(m))
}

// ResetHistory replaces the history with just the system message and clears the latest
// exchange display state.
func (s *Store) ResetHistory() error {
	s.mu.Lock()
	s.latest = Latest{}
	err := s.commitLocked(s.session.Reset())
	s.mu.Unlock()

	s.publisher.PublishBlind(events.NewEvent(events.EventSessionReset))
	return err
}

func (s *Store) Latest() Latest {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.latest
	l.Sources = append([]chat.Source(nil), s.latest.Sources...)
	return l
}

func (s *Store) SetLatest(l Latest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = l
}

func (s *Store) ClearLatest() {
	s.SetLatest(Latest{})
}

// commitLocked makes next the current session and writes it through. Must be called with
// s.mu held.
func (s *Store) commitLocked(next chat.Session) error {
	s.session = next

	b, err := json.Marshal(next.Persisted())
	if err != nil {
		return errors.Wrap(err, "could not serialize chat history")
	}
	history := string(b)

	if s.written && history == s.writtenHistory && next.SystemPrompt == s.writtenPrompt {
		return nil
	}

	if err := s.kv.Set(HistoryKey, history); err != nil {
		log.Error().Err(err).Msg("could not persist chat history")
		return errors.Wrap(err, "could not persist chat history")
	}
	if err := s.kv.Set(SystemPromptKey, next.SystemPrompt); err != nil {
		log.Error().Err(err).Msg("could not persist system prompt")
		return errors.Wrap(err, "could not persist system prompt")
	}

	s.writtenHistory = history
	s.writtenPrompt = next.SystemPrompt
	s.written = true
	return nil
}
