package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last change
// before reloading.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads sceneflow.yaml whenever it changes on disk.
//
// Successful reloads are sent on Configs and failures on Errors. Both
// channels are closed once the watcher stops.
type Watcher struct {
	Configs chan *SceneflowConfig
	Errors  chan error

	watcher  *fsnotify.Watcher
	loader   *Loader
	debounce time.Duration
	closeCh  chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewWatcher watches the config directory dir. A debounce of zero uses
// DefaultDebounce.
func NewWatcher(dir string, debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher := &Watcher{
		Configs:  make(chan *SceneflowConfig, 1),
		Errors:   make(chan error, 1),
		watcher:  w,
		loader:   NewLoader(dir),
		debounce: debounce,
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go watcher.run()
	return watcher, nil
}

// Close stops watching and waits for the watcher goroutine to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	defer close(w.Errors)
	defer close(w.Configs)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Base(event.Name) != FileName {
				continue
			}
			timer.Reset(w.debounce)
		case <-timer.C:
			cfg, err := w.loader.LoadSceneflow()
			if err != nil {
				w.send(w.Errors, err)
				continue
			}
			w.sendConfig(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.send(w.Errors, err)
		case <-w.closeCh:
			return
		}
	}
}

func (w *Watcher) send(ch chan error, err error) {
	select {
	case ch <- err:
	case <-w.closeCh:
	}
}

func (w *Watcher) sendConfig(cfg *SceneflowConfig) {
	select {
	case w.Configs <- cfg:
	case <-w.closeCh:
	}
}
