package config

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watcher monitors the config file and triggers a full reload on change.
// Reload is explicit: the callback receives a freshly loaded Config and is
// responsible for swapping it in atomically.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
	onReload func(*Config)

	mu          sync.Mutex
	lastTrigger time.Time
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     path,
		watcher:  fw,
		stopChan: make(chan struct{}),
		onReload: onReload,
	}

	// Watch the directory, not the file: editors replace files on save.
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	go w.loop()
	log.Info().Str("path", path).Msg("Config watcher started")
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.maybeReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) &&
		!strings.HasPrefix(filepath.Base(event.Name), filepath.Base(w.path)) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// maybeReload debounces rapid write bursts from editors and deploy tooling.
func (w *Watcher) maybeReload() {
	w.mu.Lock()
	if time.Since(w.lastTrigger) < time.Second {
		w.mu.Unlock()
		return
	}
	w.lastTrigger = time.Now()
	w.mu.Unlock()

	cfg := Load(w.path)
	log.Info().Str("path", w.path).Msg("Config reloaded")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
	})
}
