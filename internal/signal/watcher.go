// Package signal implements file-based run control. Dropping a file named
// "stop" or "pause" into the project's .verifix/signals directory asks a
// running repair to stop at the next round boundary or to hold before
// starting the next one. File-based signals work across terminals and
// survive the controlling process.
package signal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	stopFile  = "stop"
	pauseFile = "pause"

	// pollInterval drives the fallback poller used when the fsnotify
	// watcher cannot be created (some filesystems do not support it).
	pollInterval = 2 * time.Second
)

// Watcher observes the signals directory of one project.
type Watcher struct {
	signalsDir string

	mu     sync.RWMutex
	stop   bool
	pause  bool
	onStop func()

	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  sync.Once
}

// NewWatcher creates a Watcher for the project rooted at dir and starts
// observing. onStop, if non-nil, is invoked once when a stop signal is first
// observed.
func NewWatcher(dir string, onStop func()) (*Watcher, error) {
	signalsDir := filepath.Join(dir, ".verifix", "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, fmt.Errorf("create signals directory: %w", err)
	}

	w := &Watcher{
		signalsDir: signalsDir,
		onStop:     onStop,
		done:       make(chan struct{}),
	}
	// Signals left over from a previous run must not kill this one.
	w.clearFiles()

	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		if err := fsw.Add(signalsDir); err == nil {
			w.watcher = fsw
			go w.watchLoop()
		} else {
			fsw.Close()
		}
	}
	if w.watcher == nil {
		go w.pollLoop()
	}

	return w, nil
}

// watchLoop reacts to filesystem events on the signals directory.
func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				w.observe(name)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && name == pauseFile:
				// The pause file was removed from another terminal.
				w.clearPause()
			}
		case <-w.watcher.Errors:
			// Keep watching; the poller path covers persistent failure
			// modes badly enough that silent drops here are acceptable.
		}
	}
}

// pollLoop is the fallback when no filesystem watcher is available.
func (w *Watcher) pollLoop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if _, err := os.Stat(filepath.Join(w.signalsDir, stopFile)); err == nil {
				w.observe(stopFile)
			}
			// Pause tracks file presence so a removal from another
			// terminal resumes the run.
			if _, err := os.Stat(filepath.Join(w.signalsDir, pauseFile)); err == nil {
				w.observe(pauseFile)
			} else {
				w.clearPause()
			}
		}
	}
}

func (w *Watcher) observe(name string) {
	w.mu.Lock()
	var fire func()
	switch name {
	case stopFile:
		if !w.stop {
			w.stop = true
			fire = w.onStop
		}
	case pauseFile:
		w.pause = true
	}
	w.mu.Unlock()

	if fire != nil {
		fire()
	}
}

func (w *Watcher) clearPause() {
	w.mu.Lock()
	w.pause = false
	w.mu.Unlock()
}

// SetOnStop registers the callback invoked once when a stop signal is first
// observed, replacing any callback given to NewWatcher. A stop observed
// before registration fires the new callback immediately.
func (w *Watcher) SetOnStop(fn func()) {
	w.mu.Lock()
	w.onStop = fn
	fire := w.stop && fn != nil
	w.mu.Unlock()
	if fire {
		fn()
	}
}

// StopRequested reports whether a stop signal has been observed.
func (w *Watcher) StopRequested() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stop
}

// PauseRequested reports whether a pause signal is in effect.
func (w *Watcher) PauseRequested() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pause
}

// Resume clears an observed pause signal and removes its file.
func (w *Watcher) Resume() {
	w.mu.Lock()
	w.pause = false
	w.mu.Unlock()
	os.Remove(filepath.Join(w.signalsDir, pauseFile))
}

// Close stops watching. Signal files are left in place for inspection.
func (w *Watcher) Close() {
	w.closed.Do(func() {
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}
	})
}

func (w *Watcher) clearFiles() {
	for _, name := range []string{stopFile, pauseFile} {
		os.Remove(filepath.Join(w.signalsDir, name))
	}
}

// RequestStop writes a stop signal for the project rooted at dir, for use
// from a second terminal.
func RequestStop(dir string) error {
	return writeSignal(dir, stopFile)
}

// RequestPause writes a pause signal for the project rooted at dir.
func RequestPause(dir string) error {
	return writeSignal(dir, pauseFile)
}

// ClearPause removes a pause signal for the project rooted at dir.
func ClearPause(dir string) error {
	err := os.Remove(filepath.Join(dir, ".verifix", "signals", pauseFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pause signal: %w", err)
	}
	return nil
}

func writeSignal(dir, name string) error {
	signalsDir := filepath.Join(dir, ".verifix", "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return fmt.Errorf("create signals directory: %w", err)
	}
	path := filepath.Join(signalsDir, name)
	if err := os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)+"\n"), 0644); err != nil {
		return fmt.Errorf("write %s signal: %w", name, err)
	}
	return nil
}
