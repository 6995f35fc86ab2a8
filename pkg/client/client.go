// Package client talks to the completion/RAG service over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultBaseURL = "http://localhost:5000"

type CompletionRequest struct {
	Model    string         `json:"model"`
	UseRAG   bool           `json:"use_rag"`
	Messages []chat.Message `json:"messages"`
}

type CompletionResponse struct {
	Message     chat.Message  `json:"message"`
	ElapsedTime float64       `json:"elapsed_time"`
	Sources     []chat.Source `json:"sources,omitempty"`
}

type docsResponse struct {
	Docs []string `json:"docs"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// APIError is returned for non-2xx responses. Detail holds the service's "detail" field
// when the body carried one.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("service returned status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("service returned status %d", e.StatusCode)
}

// DetailOf returns the service-provided detail carried by err, if any.
func DetailOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithTimeout sets a client-side timeout. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.httpClient.Timeout = d
	}
}

func New(baseURL string, options ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range options {
		o(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Complete sends the windowed conversation to the completion endpoint.
func (c *Client) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request body")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	var ret CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ret); err != nil {
		return nil, errors.Wrap(err, "failed to decode completion response")
	}
	return &ret, nil
}

// ListDocuments returns the filenames of the corpus.
func (c *Client) ListDocuments(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/docs", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode document listing")
	}
	docs, ok := raw["docs"]
	if !ok {
		return nil, errors.New("unexpected response format: missing docs")
	}
	var ret docsResponse
	if err := json.Unmarshal(docs, &ret.Docs); err != nil || ret.Docs == nil {
		return nil, errors.New("unexpected response format: docs is not a list")
	}
	return ret.Docs, nil
}

// UploadDocument sends a single file as multipart form field "file". r is not read after
// UploadDocument returns.
func (c *Client) UploadDocument(ctx context.Context, filename string, r io.Reader) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	done := make(chan struct{})
	go func() {
		defer close(done)
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(mw.Close())
	}()
	// closing the read side unblocks the writer if the request ended early
	defer func() {
		_ = pr.Close()
		<-done
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/docs", pr)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(httpReq)
	if err != nil {
		return err
	}
	closeBody(resp)
	return nil
}

// DeleteDocument removes a file from the corpus.
func (c *Client) DeleteDocument(ctx context.Context, filename string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.DocumentURL(filename), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return err
	}
	closeBody(resp)
	return nil
}

// DocumentURL is the download link of a corpus file.
func (c *Client) DocumentURL(filename string) string {
	return c.baseURL + "/docs/" + url.PathEscape(filename)
}

// SourceURL is the link of a document cited as a RAG source.
func (c *Client) SourceURL(source string) string {
	return c.baseURL + "/" + url.PathEscape(source)
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}

	log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("service call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer closeBody(resp)
		apiErr := &APIError{StatusCode: resp.StatusCode}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var er errorResponse
		if json.Unmarshal(b, &er) == nil {
			apiErr.Detail = er.Detail
		}
		return nil, apiErr
	}
	return resp, nil
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close response body")
	}
}
