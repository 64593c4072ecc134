package status

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

var StatusInterval = 30 * time.Second

type Task interface {
	Progress() Progress
	Status() string // text written to the logger
}

// WatchTask periodically writes the status of a task to the logger until
// the task reaches Close or the returned stop function is called. stop
// waits for the watcher to exit.
func WatchTask(ctx context.Context, task Task, logger *slog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		continuallyDumpStatus(ctx, task, logger)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

func continuallyDumpStatus(ctx context.Context, task Task, logger *slog.Logger) {
	ticker := time.NewTicker(StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state := task.Progress().CurrentState
			if state >= Close {
				return
			}
			logger.InfoContext(ctx, task.Status(), "state", state.String())
		}
	}
}
