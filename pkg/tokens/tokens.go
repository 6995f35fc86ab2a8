// Package tokens estimates how many tokens a request window costs.
package tokens

import (
	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

const DefaultEncoding = string(tokenizer.Cl100kBase)

// Per-message framing, as counted for chat-formatted models.
const (
	tokensPerMessage = 3
	tokensPerReply   = 3
)

type Counter struct {
	codec tokenizer.Codec
}

// NewCounter picks the codec for model when it is a known model name, falling back to
// encoding, then to cl100k_base.
func NewCounter(model, encoding string) (*Counter, error) {
	if model != "" {
		if c, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
			return &Counter{codec: c}, nil
		}
	}
	if encoding == "" {
		encoding = DefaultEncoding
	}
	c, err := tokenizer.Get(tokenizer.Encoding(encoding))
	if err != nil {
		return nil, errors.Wrapf(err, "unknown encoding %s", encoding)
	}
	return &Counter{codec: c}, nil
}

func (c *Counter) Count(s string) (int, error) {
	ids, _, err := c.codec.Encode(s)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// CountMessages estimates the prompt size of a window, including message framing.
func (c *Counter) CountMessages(msgs []chat.Message) (int, error) {
	total := 0
	for _, m := range msgs {
		n, err := c.Count(string(m.Role))
		if err != nil {
			return 0, err
		}
		total += n
		if n, err = c.Count(m.Content); err != nil {
			return 0, err
		}
		total += n + tokensPerMessage
	}
	if len(msgs) > 0 {
		total += tokensPerReply
	}
	return total, nil
}
