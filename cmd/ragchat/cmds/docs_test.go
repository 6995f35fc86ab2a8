package cmds

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/ragchat/pkg/docs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestWatchListsThenUploadsExistingFiles(t *testing.T) {
	app := newTestApp(t, fakeService(t))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# notes"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool.exe"), []byte("MZ"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runWatch(ctx, app, dir, true, out)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "✓ notes.md")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}

	assert.True(t, app.Docs.Available())
	st, ok := app.Docs.StateOf("a.pdf")
	require.True(t, ok)
	assert.Equal(t, docs.StateListed, st)
	st, ok = app.Docs.StateOf("notes.md")
	require.True(t, ok)
	assert.Equal(t, docs.StateListed, st)
	_, ok = app.Docs.StateOf("tool.exe")
	assert.False(t, ok)
	assert.NotContains(t, out.String(), "tool.exe")
}
