package core

import (
	"context"
	"log/slog"
	"time"

	"nyxchain/observability"
)

// ManagedTask is the handle to one long-running background service: a
// cancellation signal and a join point. Tasks are started by the subsystem
// activator and handed to the lifecycle controller for shutdown.
type ManagedTask struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// newTask launches fn as a background service and returns its handle without
// enrolling it in the common task list. The caller owns stopping it.
func (n *Node) newTask(ctx context.Context, name string, fn func(ctx context.Context)) *ManagedTask {
	taskCtx, cancel := context.WithCancel(ctx)
	task := &ManagedTask{name: name, cancel: cancel, done: make(chan struct{})}
	observability.Metrics().ServicesRunning.Inc()
	go func() {
		defer close(task.done)
		defer observability.Metrics().ServicesRunning.Dec()
		fn(taskCtx)
	}()
	n.logger.Debug("service started", slog.String("service", name))
	return task
}

// startTask launches fn as a managed background service stopped by stopTasks.
func (n *Node) startTask(ctx context.Context, name string, fn func(ctx context.Context)) {
	n.tasks = append(n.tasks, n.newTask(ctx, name, fn))
}

// stopTask cancels one task and waits for it to finish, bounded so a stuck
// task cannot stall shutdown forever.
func (n *Node) stopTask(task *ManagedTask, timeout time.Duration) {
	task.cancel()
	select {
	case <-task.done:
		n.logger.Debug("service stopped", slog.String("service", task.name))
	case <-time.After(timeout):
		n.logger.Warn("service did not stop in time", slog.String("service", task.name))
	}
}

// stopTasks stops every enrolled task in reverse activation order.
func (n *Node) stopTasks(timeout time.Duration) {
	for i := len(n.tasks) - 1; i >= 0; i-- {
		n.stopTask(n.tasks[i], timeout)
	}
	n.tasks = nil
}
