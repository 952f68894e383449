package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// scratchpadWatcher watches a perspective-scoped scratchpad directory for
// the model's in-progress JSON write, debouncing rapid writes the way a
// slow-flushing CLI produces them (spec §4.3.4; the debounce-map shape is
// described in DESIGN.md).
type scratchpadWatcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	sawWrite    chan struct{}
	once        sync.Once
}

// newScratchpadWatcher starts watching dir (created if missing) for writes.
// Returns a nil watcher and the error if fsnotify cannot be initialized —
// the runner then falls back to simply checking file contents after the child exits,
// which is always correct, just not as immediately responsive.
func newScratchpadWatcher(dir string) (*scratchpadWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	sw := &scratchpadWatcher{
		watcher:     w,
		dir:         dir,
		debounceMap: make(map[string]time.Time),
		debounceDur: 250 * time.Millisecond,
		sawWrite:    make(chan struct{}, 1),
	}
	go sw.loop()
	return sw, nil
}

func (sw *scratchpadWatcher) loop() {
	for {
		select {
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(ev.Name, ".json") && !strings.HasSuffix(ev.Name, ".md") && !strings.HasSuffix(ev.Name, ".txt") {
				continue
			}
			sw.mu.Lock()
			last, seen := sw.debounceMap[ev.Name]
			now := time.Now()
			if seen && now.Sub(last) < sw.debounceDur {
				sw.mu.Unlock()
				continue
			}
			sw.debounceMap[ev.Name] = now
			sw.mu.Unlock()

			select {
			case sw.sawWrite <- struct{}{}:
			default:
			}
		case _, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// WaitForActivity blocks until a debounced write is observed, ctx is
// cancelled, or the deadline elapses — whichever comes first.
func (sw *scratchpadWatcher) WaitForActivity(ctx context.Context) {
	select {
	case <-sw.sawWrite:
	case <-ctx.Done():
	}
}

func (sw *scratchpadWatcher) Close() {
	sw.once.Do(func() {
		sw.watcher.Close()
	})
}

// ScratchpadPath returns the path a reviewer for perspective is instructed
// to write progress to (spec §4.3.4 step 1).
func ScratchpadPath(dir, perspective string) string {
	return filepath.Join(dir, perspective+".scratchpad.json")
}
