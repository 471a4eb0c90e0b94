package devconfig

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces bursts of events for one file.
const debounceDelay = 150 * time.Millisecond

// Logger defines the logging interface used by the watcher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Watcher reports external changes to config files.
type Watcher struct {
	store    *Store
	fs       *fsnotify.Watcher
	onChange func(serial string)
	logger   Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// NewWatcher watches the store's directory. onChange is called with the
// serial of each externally modified config, at most once per burst.
func NewWatcher(store *Store, onChange func(serial string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(store.Dir()); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}
	return &Watcher{
		store:    store,
		fs:       fsw,
		onChange: onChange,
		logger:   noopLogger{},
		timers:   make(map[string]*time.Timer),
	}, nil
}

// SetLogger sets the logger.
func (w *Watcher) SetLogger(logger Logger) {
	w.logger = logger
}

// Run handles events until ctx is cancelled or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	w.wg.Add(1)
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, Ext) {
				continue
			}
			w.schedule(strings.TrimSuffix(name, Ext))

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(serial string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[serial]; ok {
		t.Stop()
	}
	w.timers[serial] = time.AfterFunc(debounceDelay, func() {
		w.mu.Lock()
		delete(w.timers, serial)
		w.mu.Unlock()
		w.fire(serial)
	})
}

func (w *Watcher) fire(serial string) {
	data, err := os.ReadFile(w.store.path(serial))
	if err != nil {
		return
	}
	if w.store.isOwnWrite(serial, data) {
		w.logger.Debug("skipping own config write", "serial", serial)
		return
	}
	w.onChange(serial)
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for serial, t := range w.timers {
		t.Stop()
		delete(w.timers, serial)
	}
	w.mu.Unlock()
	err := w.fs.Close()
	w.wg.Wait()
	return err
}
