package processor

import "sync"

// task tracks one in-flight dispatch: done closes when the work item's
// closure returns.
type task struct {
	done chan struct{}
}

// runningTasks is the dispatcher's single-writer record of in-flight
// work, pruned every loop iteration and drained in full on shutdown.
type runningTasks struct {
	mu    sync.Mutex
	tasks []*task
}

func (rt *runningTasks) add(t *task) {
	rt.mu.Lock()
	rt.tasks = append(rt.tasks, t)
	rt.mu.Unlock()
}

// prune drops tasks that have already completed.
func (rt *runningTasks) prune() {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	alive := rt.tasks[:0]
	for _, t := range rt.tasks {
		select {
		case <-t.done:
		default:
			alive = append(alive, t)
		}
	}
	rt.tasks = alive
}

// wait blocks until every currently tracked task has completed.
func (rt *runningTasks) wait() {
	rt.mu.Lock()
	pending := append([]*task(nil), rt.tasks...)
	rt.mu.Unlock()

	for _, t := range pending {
		<-t.done
	}
}
