package chat

// Session is the conversation state: a system prompt held on its own, and the ordered
// user/assistant history.
//
// The persisted form is a single sequence whose first element is the system message; it
// is produced by Persisted and never stored in History itself.
type Session struct {
	SystemPrompt string    `json:"system_prompt" yaml:"system_prompt"`
	History      []Message `json:"history" yaml:"history"`
}

// NewSession returns a session with no conversation yet.
func NewSession(systemPrompt string) Session {
	return Session{SystemPrompt: systemPrompt, History: []Message{}}
}

// SystemMessage synthesizes the single logical system message of the session.
func (s Session) SystemMessage() Message {
	return NewMessage(RoleSystem, s.SystemPrompt)
}

// Persisted returns the stored form: the system message followed by the history.
func (s Session) Persisted() []Message {
	ret := make([]Message, 0, len(s.History)+1)
	ret = append(ret, s.SystemMessage())
	for _, m := range s.History {
		if m.Role == RoleSystem {
			continue
		}
		ret = append(ret, m)
	}
	return ret
}

// Visible returns a copy of the history without any system entries, which is what
// display components get to see.
func (s Session) Visible() []Message {
	ret := make([]Message, 0, len(s.History))
	for _, m := range s.History {
		if m.Role == RoleSystem {
			continue
		}
		ret = append(ret, m)
	}
	return ret
}

// IsFresh reports whether no user or assistant message has been added yet.
func (s Session) IsFresh() bool {
	return len(s.Visible()) == 0
}

// AppendUserMessage returns a new session with a user message appended. The receiver is
// left untouched.
func (s Session) AppendUserMessage(content string) Session {
	return s.append(NewMessage(RoleUser, content))
}

// AppendAssistantMessage returns a new session with the normalized assistant message appended.
func (s Session) AppendAssistantMessage(m Message) Session {
	m.Content = NormalizeAssistantContent(m.Content)
	return s.append(m)
}

// Reset returns a session with the same prompt and no conversation.
func (s Session) Reset() Session {
	return NewSession(s.SystemPrompt)
}

func (s Session) Clone() Session {
	h := make([]Message, len(s.History))
	copy(h, s.History)
	return Session{SystemPrompt: s.SystemPrompt, History: h}
}

func (s Session) append(m Message) Session {
	h := make([]Message, len(s.History), len(s.History)+1)
	copy(h, s.History)
	h = append(h, m)
	return Session{SystemPrompt: s.SystemPrompt, History: h}
}
