package chat

const (
	// RAGWindowSize bounds the history sent when retrieval adds its own context.
	RAGWindowSize = 4
	// DefaultWindowSize bounds the history sent for plain completions.
	DefaultWindowSize = 8
)

// WindowSize returns how many recent history entries a turn transmits.
func WindowSize(ragEnabled bool) int {
	if ragEnabled {
		return RAGWindowSize
	}
	return DefaultWindowSize
}

// SelectWindow picks the messages transmitted for a turn: the current system prompt
// followed by the most recent non-system messages of the history, in chronological order.
//
// The pending user message must already be part of sess.History.
func SelectWindow(sess Session, ragEnabled bool) []Message {
	k := WindowSize(ragEnabled)

	start := len(sess.History) - k
	if start < 0 {
		start = 0
	}
	tail := sess.History[start:]

	ret := make([]Message, 0, len(tail)+1)
	ret = append(ret, sess.SystemMessage())
	for _, m := range tail {
		if m.Role == RoleSystem {
			continue
		}
		ret = append(ret, m)
	}
	return ret
}
