package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/lanternrouter/lantern/internal/logging"
)

// Watcher reloads a Config snapshot from disk whenever the underlying file
// changes, atomically swapping it so in-flight readers keep their current
// snapshot even while a reload is in progress.
type Watcher struct {
	path    string
	current atomic.Pointer[Config]
	log     *logging.Logger
	fsw     *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher loads the config at path once, then watches it for changes.
func NewWatcher(path string, log *logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.Nop()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(pathOrDir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, log: log.With("config"), fsw: fsw, done: make(chan struct{})}
	w.current.Store(cfg)
	go w.loop()
	return w, nil
}

// Current returns the most recently loaded configuration snapshot.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Reload forces a synchronous re-read of the config file. In-flight
// requests retain their already-captured snapshot.
func (w *Watcher) Reload() error {
	cfg, err := Load(w.path)
	if err != nil {
		return err
	}
	w.current.Store(cfg)
	return nil
}

// Close stops the background watch goroutine.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.Reload(); err != nil {
				w.log.Warn().Err(err).Msg("config reload failed, keeping previous snapshot")
			} else {
				w.log.Info().Msg("config reloaded")
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func pathOrDir(path string) string {
	// fsnotify on some platforms needs to watch the containing directory
	// rather than the file itself to see replace-style writes; watching
	// the parent directory also survives the file not existing yet.
	dir := path
	for i := len(dir) - 1; i >= 0; i-- {
		if dir[i] == '/' {
			return dir[:i]
		}
	}
	return "."
}
