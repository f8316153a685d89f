package history

import (
	"context"
	"sync"

	"github.com/joshmarinacci/hiero-consensus-node-sub002/history/types"
)

const watchBufferSize = 100

// watcher keeps the list of the channels that are notified of the finished
// constructions. A full channel misses the notification.
type watcher struct {
	sync.RWMutex

	observers map[chan types.Construction]struct{}
}

func newWatcher() *watcher {
	return &watcher{
		observers: make(map[chan types.Construction]struct{}),
	}
}

func (w *watcher) watch(ctx context.Context) <-chan types.Construction {
	ch := make(chan types.Construction, watchBufferSize)

	w.Lock()
	w.observers[ch] = struct{}{}
	w.Unlock()

	go func() {
		<-ctx.Done()

		w.Lock()
		delete(w.observers, ch)
		close(ch)
		w.Unlock()
	}()

	return ch
}

func (w *watcher) notify(construction types.Construction) {
	w.RLock()
	defer w.RUnlock()

	for ch := range w.observers {
		select {
		case ch <- construction:
		default:
		}
	}
}
