// Package docs keeps the client-side view of the RAG corpus: the last listing fetched
// from the service, corrected locally as uploads and deletes succeed.
package docs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/go-go-golems/ragchat/pkg/client"
	"github.com/go-go-golems/ragchat/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type State string

const (
	StateListed    State = "listed"
	StateUploading State = "uploading"
	StateDeleting  State = "deleting"
)

const (
	listFailedMessage   = "Failed to fetch file list"
	uploadFailedMessage = "Upload failed"
	deleteFailedMessage = "Failed to delete file"
)

// ErrOperationPending is returned when a file already has an upload or delete in flight.
var ErrOperationPending = errors.New("an operation on this file is already in flight")

type Record struct {
	Filename string `json:"filename" yaml:"filename"`
	State    State  `json:"state" yaml:"state"`
}

// Corpus is the document endpoint set of the service. *client.Client implements it.
type Corpus interface {
	ListDocuments(ctx context.Context) ([]string, error)
	UploadDocument(ctx context.Context, filename string, r io.Reader) error
	DeleteDocument(ctx context.Context, filename string) error
}

var _ Corpus = (*client.Client)(nil)

// Repository tracks every file by name. Operations on different files run concurrently
// and never see each other's intermediate state.
type Repository struct {
	corpus    Corpus
	publisher events.Publisher

	mu        sync.Mutex
	listing   []string
	available bool
	pending   map[string]State
}

type Option func(*Repository)

func WithPublisher(p events.Publisher) Option {
	return func(r *Repository) {
		if p != nil {
			r.publisher = p
		}
	}
}

func NewRepository(corpus Corpus, options ...Option) *Repository {
	r := &Repository{
		corpus:    corpus,
		publisher: events.NopPublisher{},
		pending:   map[string]State{},
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// List refreshes the listing from the service. On failure it returns an empty slice and
// a ListFailed failure, and Available reports false until the next successful list.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	docs, err := r.corpus.ListDocuments(ctx)
	if err != nil {
		r.mu.Lock()
		r.listing = nil
		r.available = false
		r.mu.Unlock()

		f := chat.NewFailure(chat.ListFailed, listFailedMessage, err)
		r.publishFailure(events.EventDocsListFailed, "", f)
		log.Warn().Err(err).Msg("Could not list documents")
		return []string{}, f
	}

	r.mu.Lock()
	r.listing = append([]string(nil), docs...)
	r.available = true
	r.mu.Unlock()

	e := events.NewEvent(events.EventDocsListed)
	e.Count = len(docs)
	r.publisher.PublishBlind(e)

	return append([]string(nil), docs...), nil
}

// Available reports whether the last listing attempt succeeded. A false value means the
// corpus contents are unknown, not empty.
func (r *Repository) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available
}

// Records returns the listing with the in-flight state of each file.
func (r *Repository) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]Record, 0, len(r.listing))
	for _, name := range r.listing {
		st := StateListed
		if p, ok := r.pending[name]; ok {
			st = p
		}
		ret = append(ret, Record{Filename: name, State: st})
	}
	return ret
}

// Uploading returns the files being uploaded that are not in the listing yet.
func (r *Repository) Uploading() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ret []string
	for name, st := range r.pending {
		if st == StateUploading && indexOf(r.listing, name) < 0 {
			ret = append(ret, name)
		}
	}
	sort.Strings(ret)
	return ret
}

// StateOf returns the state of a file, false if the file is neither listed nor uploading.
func (r *Repository) StateOf(filename string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.pending[filename]; ok {
		return st, true
	}
	if indexOf(r.listing, filename) >= 0 {
		return StateListed, true
	}
	return "", false
}

// Upload sends content under filename. The file is added to the local listing on
// success; on failure the listing is unchanged and the returned UploadFailed failure
// carries the service's detail message when there is one.
func (r *Repository) Upload(ctx context.Context, filename string, content io.Reader) error {
	if err := r.begin(filename, StateUploading, chat.UploadFailed); err != nil {
		return err
	}
	r.publishFile(events.EventDocUploading, filename)

	err := r.corpus.UploadDocument(ctx, filename, content)

	r.mu.Lock()
	delete(r.pending, filename)
	if err == nil && indexOf(r.listing, filename) < 0 {
		r.listing = append(r.listing, filename)
	}
	r.mu.Unlock()

	if err != nil {
		f := chat.NewFailure(chat.UploadFailed, messageFor(err, uploadFailedMessage), err)
		r.publishFailure(events.EventDocFailed, filename, f)
		log.Warn().Err(err).Str("filename", filename).Msg("Upload failed")
		return f
	}

	r.publishFile(events.EventDocUploaded, filename)
	log.Info().Str("filename", filename).Msg("Uploaded document")
	return nil
}

// UploadFile uploads a local file under its base name.
func (r *Repository) UploadFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return chat.NewFailure(chat.UploadFailed, uploadFailedMessage, errors.Wrapf(err, "could not open %s", path))
	}
	defer func() {
		_ = f.Close()
	}()
	return r.Upload(ctx, filepath.Base(path), f)
}

// Delete removes filename from the corpus. While in flight the file shows as Deleting;
// on failure it reverts to Listed.
func (r *Repository) Delete(ctx context.Context, filename string) error {
	if err := r.begin(filename, StateDeleting, chat.DeleteFailed); err != nil {
		return err
	}
	r.publishFile(events.EventDocDeleting, filename)

	err := r.corpus.DeleteDocument(ctx, filename)

	r.mu.Lock()
	delete(r.pending, filename)
	if err == nil {
		if i := indexOf(r.listing, filename); i >= 0 {
			r.listing = append(r.listing[:i:i], r.listing[i+1:]...)
		}
	}
	r.mu.Unlock()

	if err != nil {
		f := chat.NewFailure(chat.DeleteFailed, messageFor(err, deleteFailedMessage), err)
		r.publishFailure(events.EventDocFailed, filename, f)
		log.Warn().Err(err).Str("filename", filename).Msg("Delete failed")
		return f
	}

	r.publishFile(events.EventDocDeleted, filename)
	log.Info().Str("filename", filename).Msg("Deleted document")
	return nil
}

func (r *Repository) begin(filename string, st State, kind chat.FailureKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.pending[filename]; ok {
		return chat.NewFailure(kind, "File is busy: "+string(current), ErrOperationPending)
	}
	r.pending[filename] = st
	return nil
}

func (r *Repository) publishFile(t events.EventType, filename string) {
	e := events.NewEvent(t)
	e.Filename = filename
	r.publisher.PublishBlind(e)
}

func (r *Repository) publishFailure(t events.EventType, filename string, f *chat.Failure) {
	e := events.NewEvent(t)
	e.Filename = filename
	e.Kind = string(f.Kind)
	e.Message = f.Message
	r.publisher.PublishBlind(e)
}

func messageFor(err error, fallback string) string {
	if detail := client.DetailOf(err); detail != "" {
		return detail
	}
	return fallback
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
