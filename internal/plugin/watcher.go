package plugin

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/dscopilot/internal/protocol"
)

// Watcher polls the host's selection and posts SELECTION_CHANGED whenever
// the set of selected node ids differs from the previous poll.
type Watcher struct {
	host   *Host
	poll   time.Duration
	last   string
	primed bool
	logger *slog.Logger
}

// NewWatcher creates a Watcher for host.
// If pollInterval is <= 0, it defaults to 250ms.
func NewWatcher(host *Host, pollInterval time.Duration) *Watcher {
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	return &Watcher{
		host:   host,
		poll:   pollInterval,
		logger: host.logger,
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		w.RunOnce()

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce compares the selection with the previous poll and notifies on
// change. The first call records the baseline without notifying.
// Returns true if a notification was posted.
func (w *Watcher) RunOnce() bool {
	sel := w.host.Selection()

	ids := make([]string, 0, len(sel.Items))
	for _, it := range sel.Items {
		ids = append(ids, it.ID)
	}
	key := strings.Join(ids, ",")

	if !w.primed {
		w.primed = true
		w.last = key
		return false
	}
	if key == w.last {
		return false
	}
	w.last = key

	w.logger.Debug("selection changed", "count", sel.Count)
	w.host.poster().Post(protocol.PluginMessage{Type: protocol.MsgSelectionChanged, Selection: &sel})
	return true
}
