package session

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/go-go-golems/ragchat/pkg/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func persistedHistory(t *testing.T, kv kvstore.Store) []chat.Message {
	v, ok, err := kv.Get(HistoryKey)
	require.NoError(t, err)
	require.True(t, ok)
	var msgs []chat.Message
	require.NoError(t, json.Unmarshal([]byte(v), &msgs))
	return msgs
}

func TestLoadEmptyStorageUsesDefaultPrompt(t *testing.T) {
	s := NewStore(kvstore.NewMemoryStore())
	sess := s.Session()
	assert.Equal(t, DefaultSystemPrompt, sess.SystemPrompt)
	assert.Empty(t, sess.History)
	assert.Empty(t, s.Visible())
}

func TestLoadCorruptHistoryFallsBack(t *testing.T) {
	for name, stored := range map[string]string{
		"not json":      "{{{",
		"not a list":    `{"role":"user"}`,
		"null":          `null`,
		"bad role":      `[{"role":"system","content":"P"},{"role":"wizard","content":"x"}]`,
		"second system": `[{"role":"system","content":"P"},{"role":"system","content":"Q"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			kv := kvstore.NewMemoryStore()
			require.NoError(t, kv.Set(HistoryKey, stored))
			require.NoError(t, kv.Set(SystemPromptKey, "kept prompt"))

			s := NewStore(kv)
			sess := s.Session()
			assert.Equal(t, "kept prompt", sess.SystemPrompt)
			assert.Empty(t, sess.History)
		})
	}
}

func TestLoadTakesPromptFromHistoryWhenSlotMissing(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	require.NoError(t, kv.Set(HistoryKey, `[{"role":"system","content":"from history"},{"role":"user","content":"hi"}]`))

	s := NewStore(kv)
	assert.Equal(t, "from history", s.SystemPrompt())
	assert.Equal(t, []chat.Message{chat.NewMessage(chat.RoleUser, "hi")}, s.Visible())
}

func TestRoundTripThroughStorage(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s := NewStore(kv)
	require.NoError(t, s.SetSystemPrompt("P1"))
	_, err := s.PushUserMessage("question")
	require.NoError(t, err)
	require.NoError(t, s.ApplyAssistantMessage(chat.NewMessage(chat.RoleAssistant, "\n\nanswer")))

	reloaded := NewStore(kv)
	assert.Equal(t, s.Session().Persisted(), reloaded.Session().Persisted())
	assert.Equal(t, "answer", reloaded.Visible()[1].Content)
}

func TestSetSystemPromptOnFreshSessionRewritesLoneMessage(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	require.NoError(t, kv.Set(SystemPromptKey, "P0"))
	s := NewStore(kv)

	require.NoError(t, s.SetSystemPrompt("  P1  "))
	assert.Equal(t, []chat.Message{chat.NewMessage(chat.RoleSystem, "P1")}, persistedHistory(t, kv))
	v, _, _ := kv.Get(SystemPromptKey)
	assert.Equal(t, "P1", v)
}

func TestSetSystemPromptEmptyUsesDefault(t *testing.T) {
	s := NewStore(kvstore.NewMemoryStore(), WithDefaultSystemPrompt("fallback"))
	require.NoError(t, s.SetSystemPrompt("custom"))
	require.NoError(t, s.SetSystemPrompt("   "))
	assert.Equal(t, "fallback", s.SystemPrompt())
}

func TestSetSystemPromptKeepsConversation(t *testing.T) {
	s := NewStore(kvstore.NewMemoryStore())
	_, err := s.PushUserMessage("q")
	require.NoError(t, err)
	require.NoError(t, s.ApplyAssistantMessage(chat.NewMessage(chat.RoleAssistant, "a")))

	require.NoError(t, s.SetSystemPrompt("P2"))
	sess := s.Session()
	assert.Equal(t, "P2", sess.SystemPrompt)
	assert.Equal(t, []chat.Message{
		chat.NewMessage(chat.RoleUser, "q"),
		chat.NewMessage(chat.RoleAssistant, "a"),
	}, sess.History)
	assert.Equal(t, "P2", chat.SelectWindow(sess, false)[0].Content)
}

func TestResetHistoryClearsLatest(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s := NewStore(kv)
	_, err := s.PushUserMessage("q")
	require.NoError(t, err)
	elapsed := 1.2
	s.SetLatest(Latest{ExchangeID: "x", Sources: []chat.Source{{Source: "a.pdf"}}, ElapsedSeconds: &elapsed})

	require.NoError(t, s.ResetHistory())
	assert.Empty(t, s.Visible())
	assert.Equal(t, Latest{}, s.Latest())
	assert.Equal(t, []chat.Message{chat.NewMessage(chat.RoleSystem, DefaultSystemPrompt)}, persistedHistory(t, kv))
}

func TestApplyAssistantMessageRejectsOtherRoles(t *testing.T) {
	s := NewStore(kvstore.NewMemoryStore())
	assert.Error(t, s.ApplyAssistantMessage(chat.NewMessage(chat.RoleSystem, "sneaky")))
	assert.Empty(t, s.Visible())
}

func TestIdenticalStateIsNotRewritten(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s := NewStore(kv)
	require.NoError(t, s.SetSystemPrompt("P"))
	writes := kv.Writes()

	require.NoError(t, s.SetSystemPrompt("P"))
	require.NoError(t, s.ResetHistory())
	assert.Equal(t, writes, kv.Writes())
}

func TestSingleSystemMessageInvariant(t *testing.T) {
	kv := kvstore.NewMemoryStore()
	s := NewStore(kv)
	ops := []func() error{
		func() error { _, err := s.PushUserMessage("1"); return err },
		func() error { return s.ApplyAssistantMessage(chat.NewMessage(chat.RoleAssistant, "2")) },
		func() error { _, err := s.PushUserMessage("3"); return err },
		s.ResetHistory,
		func() error { _, err := s.PushUserMessage("4"); return err },
	}
	for _, op := range ops {
		require.NoError(t, op())
		h := persistedHistory(t, kv)
		require.NotEmpty(t, h)
		assert.Equal(t, chat.NewMessage(chat.RoleSystem, s.SystemPrompt()), h[0])
		for _, m := range h[1:] {
			assert.NotEqual(t, chat.RoleSystem, m.Role)
		}
	}
}

func TestExportAndImport(t *testing.T) {
	s := NewStore(kvstore.NewMemoryStore())
	require.NoError(t, s.SetSystemPrompt("P"))
	_, err := s.PushUserMessage("q")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Export(&buf, FormatYAML))
	var msgs []chat.Message
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &msgs))
	assert.Equal(t, s.Session().Persisted(), msgs)

	path := filepath.Join(t.TempDir(), "history.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	other := NewStore(kvstore.NewMemoryStore())
	require.NoError(t, other.ImportFile(path))
	assert.Equal(t, "P", other.SystemPrompt())
	assert.Equal(t, s.Visible(), other.Visible())

	assert.Error(t, s.Export(&buf, "xml"))
}
