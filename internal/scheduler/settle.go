package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type task func(ctx context.Context) error

// settleAll runs every task concurrently and waits for all of them. The error of each task
// is reported at its index; a panic is converted into that task's error. Each task gets its
// own timeout when timeout > 0.
func settleAll(ctx context.Context, timeout time.Duration, tasks []task) []error {
	errs := make([]error, len(tasks))

	var wg sync.WaitGroup
	for i, t := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("task panicked: %v", r)
				}
			}()

			taskCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				taskCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			errs[i] = t(taskCtx)
		}()
	}
	wg.Wait()

	return errs
}
