package dispatcher

import (
	"github.com/fsnotify/fsnotify"

	"github.com/umd-lib/plastron-go/internal/plog"
)

// InboxWatcher watches an inbox directory and invokes onCreate for every
// newly created file. Only creation events trigger processing: on Linux, a
// new file also fires a Write event immediately after Create, which would
// otherwise double-process the same message (the original hit this same
// platform difference — see plastron.stomp.inbox_watcher).
type InboxWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	onCreate func(path string)
	logger   *plog.ContextLogger
	done     chan struct{}
}

// NewInboxWatcher creates a watcher on dir. Start must be called to begin
// watching.
func NewInboxWatcher(dir string, onCreate func(path string)) (*InboxWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return &InboxWatcher{
		watcher:  w,
		dir:      dir,
		onCreate: onCreate,
		logger:   plog.New(nil, map[string]interface{}{"component": "inbox_watcher"}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine.
func (w *InboxWatcher) Start() {
	w.logger.Debug("starting inbox watcher")
	go w.run()
}

func (w *InboxWatcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			w.logger.Infof("triggering inbox processing due to %s", event.Name)
			w.onCreate(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("inbox watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Stop stops watching and releases the underlying OS resources.
func (w *InboxWatcher) Stop() {
	w.logger.Debug("stopping inbox watcher")
	close(w.done)
	w.watcher.Close()
}
