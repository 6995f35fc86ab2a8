package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompleteSendsWindowAndDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req CompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama", req.Model)
		assert.True(t, req.UseRAG)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, chat.RoleSystem, req.Messages[0].Role)

		_, _ = w.Write([]byte(`{
			"message": {"role": "assistant", "content": "\nhello"},
			"elapsed_time": 2.5,
			"sources": [{"source": "a.pdf", "start_page": 1, "end_page": 2, "chunk_id": 7, "chunk_length": 512, "total_chunk_pages": 2}]
		}`))
	}))
	defer server.Close()

	c := New(server.URL)
	resp, err := c.Complete(context.Background(), &CompletionRequest{
		Model:  "llama",
		UseRAG: true,
		Messages: []chat.Message{
			chat.NewMessage(chat.RoleSystem, "P"),
			chat.NewMessage(chat.RoleUser, "hi"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, chat.NewMessage(chat.RoleAssistant, "\nhello"), resp.Message)
	assert.Equal(t, 2.5, resp.ElapsedTime)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, chat.Source{Source: "a.pdf", StartPage: 1, EndPage: 2, ChunkID: 7, ChunkLength: 512, TotalChunkPages: 2}, resp.Sources[0])
}

func TestCompleteNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := New(server.URL).Complete(context.Background(), &CompletionRequest{})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestCompleteMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	_, err := New(server.URL).Complete(context.Background(), &CompletionRequest{})
	assert.Error(t, err)
}

func TestListDocuments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/docs", r.URL.Path)
		_, _ = w.Write([]byte(`{"docs": ["a.pdf", "b.pdf"]}`))
	}))
	defer server.Close()

	docs, err := New(server.URL + "/").ListDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, docs)
}

func TestListDocumentsUnexpectedFormat(t *testing.T) {
	for _, body := range []string{`{"docs": "a.pdf"}`, `{"files": []}`, `{"docs": null}`} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := New(server.URL).ListDocuments(context.Background())
		assert.Error(t, err, body)
		server.Close()
	}
}

func TestUploadDocumentSendsMultipartFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/docs", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		b, _ := io.ReadAll(f)
		assert.Equal(t, "report.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.4", string(b))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := New(server.URL).UploadDocument(context.Background(), "report.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
}

func TestUploadDocumentDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail": "unsupported format"}`))
	}))
	defer server.Close()

	err := New(server.URL).UploadDocument(context.Background(), "x.txt", strings.NewReader("x"))
	require.Error(t, err)
	assert.Equal(t, "unsupported format", DetailOf(err))
}

// slowReader yields chunks until size bytes are read and flags any Read made after
// returned was set.
type slowReader struct {
	left      int
	returned  atomic.Bool
	lateReads atomic.Int32
}

func (s *slowReader) Read(p []byte) (int, error) {
	if s.returned.Load() {
		s.lateReads.Add(1)
	}
	if s.left <= 0 {
		return 0, io.EOF
	}
	n := len(p)
	if n > 1024 {
		n = 1024
	}
	if n > s.left {
		n = s.left
	}
	s.left -= n
	return n, nil
}

func TestUploadDocumentDoesNotReadAfterReturn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte(`{"detail": "file too large"}`))
	}))
	defer server.Close()

	r := &slowReader{left: 8 << 20}
	err := New(server.URL).UploadDocument(context.Background(), "big.pdf", r)
	r.returned.Store(true)
	require.Error(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, r.lateReads.Load())
}

func TestDeleteDocumentEscapesFilename(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/docs/my%20file.pdf", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	require.NoError(t, New(server.URL).DeleteDocument(context.Background(), "my file.pdf"))
}

func TestDeleteDocumentFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail": "File not found"}`))
	}))
	defer server.Close()

	err := New(server.URL).DeleteDocument(context.Background(), "gone.pdf")
	require.Error(t, err)
	assert.Equal(t, "File not found", DetailOf(err))
}

func TestURLs(t *testing.T) {
	c := New("http://rag.local:5000/")
	assert.Equal(t, "http://rag.local:5000/docs/a%20b.pdf", c.DocumentURL("a b.pdf"))
	assert.Equal(t, "http://rag.local:5000/a.pdf", c.SourceURL("a.pdf"))
	assert.Equal(t, DefaultBaseURL, New("").BaseURL())
}
