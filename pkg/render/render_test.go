package render

import (
	"testing"

	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/go-go-golems/ragchat/pkg/docs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func link(name string) string {
	return "http://localhost:5000/" + name
}

func TestAnswerWithSourcesAndElapsed(t *testing.T) {
	r := NewRenderer("", true)
	elapsed := 1.234
	out, err := r.Answer("The answer.", []chat.Source{
		{Source: "a.pdf", StartPage: 2, EndPage: 4},
		{Source: "b.pdf", StartPage: 1, EndPage: 1},
	}, &elapsed, link)
	require.NoError(t, err)

	assert.Contains(t, out, "The answer.")
	assert.Contains(t, out, "⏱️ Response time: 1.23 s")
	assert.Contains(t, out, "**Sources**")
	assert.Contains(t, out, "1. [a.pdf](http://localhost:5000/a.pdf) (pages 2-4)")
	assert.Contains(t, out, "2. [b.pdf](http://localhost:5000/b.pdf) (pages 1-1)")
}

func TestAnswerWithoutSources(t *testing.T) {
	r := NewRenderer("", true)
	out, err := r.Answer("Plain.", nil, nil, link)
	require.NoError(t, err)
	assert.Equal(t, "Plain.\n", out)
}

func TestHistory(t *testing.T) {
	r := NewRenderer("", true)
	out, err := r.History([]chat.Message{
		chat.NewMessage(chat.RoleUser, "hi"),
		chat.NewMessage(chat.RoleAssistant, "hello"),
	})
	require.NoError(t, err)
	assert.Equal(t, "**User**: hi\n\n**Assistant**: hello\n", out)
}

func TestDocuments(t *testing.T) {
	r := NewRenderer("", true)

	out, err := r.Documents(false, nil, nil, link)
	require.NoError(t, err)
	assert.Contains(t, out, "File list unavailable")

	out, err = r.Documents(true, nil, nil, link)
	require.NoError(t, err)
	assert.Contains(t, out, "No files uploaded")

	out, err = r.Documents(true, []docs.Record{
		{Filename: "a.pdf", State: docs.StateListed},
		{Filename: "b.pdf", State: docs.StateDeleting},
	}, []string{"c.pdf"}, link)
	require.NoError(t, err)
	assert.Contains(t, out, "- [a.pdf](http://localhost:5000/a.pdf)\n")
	assert.Contains(t, out, "- [b.pdf](http://localhost:5000/b.pdf) _(deleting...)_")
	assert.Contains(t, out, "- c.pdf _(uploading...)_")
}

func TestGlamourStyle(t *testing.T) {
	r := NewRenderer("notty", false)
	out, err := r.Answer("hello", nil, nil, link)
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
}
