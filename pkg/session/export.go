package session

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Export writes the persisted form of the session (system message first) to w.
func (s *Store) Export(w io.Writer, format string) error {
	msgs := s.Session().Persisted()

	switch format {
	case FormatJSON, "":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(msgs)
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		defer func() {
			_ = encoder.Close()
		}()
		return encoder.Encode(msgs)
	default:
		return errors.Errorf("unknown export format %q (should be json or yaml)", format)
	}
}

// ImportFile replaces the session with the messages stored in a json or yaml file. A
// leading system message, if present, becomes the system prompt.
func (s *Store) ImportFile(filename string) error {
	msgs, err := loadMessagesFromFile(filename)
	if err != nil {
		return err
	}

	b, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	history, err := decodeHistory(string(b))
	if err != nil {
		return errors.Wrapf(err, "invalid history in %s", filename)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := chat.NewSession(s.session.SystemPrompt)
	for _, m := range history {
		if m.Role == chat.RoleSystem {
			if p := strings.TrimSpace(m.Content); p != "" {
				next.SystemPrompt = p
			}
			continue
		}
		next.History = append(next.History, m)
	}
	s.latest = Latest{}
	return s.commitLocked(next)
}

func loadMessagesFromFile(filename string) ([]chat.Message, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	var messages []chat.Message
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		err = json.NewDecoder(f).Decode(&messages)
	case ".yaml", ".yml":
		err = yaml.NewDecoder(f).Decode(&messages)
	default:
		return nil, errors.Errorf("unsupported history file %s (should be .json, .yaml or .yml)", filename)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse %s", filename)
	}
	return messages, nil
}
