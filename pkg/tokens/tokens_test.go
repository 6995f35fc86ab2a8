package tokens

import (
	"testing"

	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCount(t *testing.T) {
	c, err := NewCounter("", "")
	require.NoError(t, err)

	n, err := c.Count("hello world")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCountMessagesAddsFraming(t *testing.T) {
	c, err := NewCounter("unknown-local-model", "")
	require.NoError(t, err)

	empty, err := c.CountMessages(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty)

	msgs := []chat.Message{
		chat.NewMessage(chat.RoleSystem, "hello world"),
		chat.NewMessage(chat.RoleUser, "hello world"),
	}
	total, err := c.CountMessages(msgs)
	require.NoError(t, err)

	content, _ := c.Count("hello world")
	system, _ := c.Count("system")
	user, _ := c.Count("user")
	assert.Equal(t, 2*content+system+user+2*tokensPerMessage+tokensPerReply, total)
}

func TestUnknownEncoding(t *testing.T) {
	_, err := NewCounter("", "nope")
	assert.Error(t, err)
}
