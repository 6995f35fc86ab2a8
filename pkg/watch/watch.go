// Package watch uploads files dropped into a directory to the RAG corpus.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-go-golems/ragchat/pkg/chat"
	"github.com/go-go-golems/ragchat/pkg/docs"
	"github.com/go-go-golems/ragchat/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var DefaultExtensions = []string{".pdf", ".txt", ".md"}

const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultConcurrency = 2
)

// Uploader is satisfied by *docs.Repository.
type Uploader interface {
	UploadFile(ctx context.Context, path string) error
}

var _ Uploader = (*docs.Repository)(nil)

type Watcher struct {
	uploader    Uploader
	dir         string
	extensions  []string
	debounce    time.Duration
	concurrency int
	initialScan bool
	publisher   events.Publisher

	watcher *fsnotify.Watcher
}

type Option func(*Watcher)

func WithExtensions(extensions []string) Option {
	return func(w *Watcher) {
		if len(extensions) == 0 {
			return
		}
		w.extensions = nil
		for _, e := range extensions {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			w.extensions = append(w.extensions, e)
		}
	}
}

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

func WithConcurrency(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithInitialScan uploads the matching files already present when Run starts.
func WithInitialScan(scan bool) Option {
	return func(w *Watcher) {
		w.initialScan = scan
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(w *Watcher) {
		if p != nil {
			w.publisher = p
		}
	}
}

// New starts watching dir. Events are only processed once Run is called.
func New(uploader Uploader, dir string, options ...Option) (*Watcher, error) {
	w := &Watcher{
		uploader:    uploader,
		dir:         dir,
		extensions:  DefaultExtensions,
		debounce:    DefaultDebounce,
		concurrency: DefaultConcurrency,
		publisher:   events.NopPublisher{},
	}
	for _, o := range options {
		o(w)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "could not create file watcher")
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, errors.Wrapf(err, "could not watch %s", dir)
	}
	w.watcher = fw
	return w, nil
}

func (w *Watcher) Matches(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Run uploads created or modified files until ctx is cancelled. A file written several
// times within the debounce interval is uploaded once. Upload failures are logged and
// do not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		_ = w.watcher.Close()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	ready := make(chan string, 16)
	var mu sync.Mutex
	timers := map[string]*time.Timer{}
	defer func() {
		mu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		mu.Unlock()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[path]; ok {
			t.Reset(w.debounce)
			return
		}
		timers[path] = time.AfterFunc(w.debounce, func() {
			mu.Lock()
			delete(timers, path)
			mu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}

	if w.initialScan {
		entries, err := os.ReadDir(w.dir)
		if err != nil {
			return errors.Wrapf(err, "could not scan %s", w.dir)
		}
		for _, e := range entries {
			if !e.IsDir() && w.Matches(e.Name()) {
				schedule(filepath.Join(w.dir, e.Name()))
			}
		}
	}

	log.Info().Str("dir", w.dir).Strs("extensions", w.extensions).Msg("Watching for documents")

	for {
		select {
		case <-ctx.Done():
			return g.Wait()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return g.Wait()
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.Matches(event.Name) {
				continue
			}
			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("File changed")
			schedule(event.Name)

		case path := <-ready:
			seen := events.NewEvent(events.EventWatchedFileSeen)
			seen.Filename = filepath.Base(path)
			w.publisher.PublishBlind(seen)

			g.Go(func() error {
				if err := w.uploader.UploadFile(gctx, path); err != nil {
					log.Warn().Err(err).Str("path", path).Str("reason", chat.MessageOf(err)).Msg("Could not upload watched file")
				}
				return nil
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return g.Wait()
			}
			log.Warn().Err(err).Msg("File watcher error")
		}
	}
}

// Close stops the watcher without running it.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
