// Package async runs independent tasks on a bounded set of workers and
// reports every outcome, successful or not.
package async

import (
	"context"
	"fmt"
	"sync"
)

type Task struct {
	Name    string
	Execute func(ctx context.Context) error
}

type Result struct {
	Name string
	Err  error
}

// Pool bounds how many tasks of one Execute call run at once. A Pool is
// stateless between calls and may be shared.
type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

// Execute runs all tasks and waits for each to settle. A task that panics is
// reported as failed; a task never started because ctx ended reports ctx.Err().
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	queue := make(chan Task)
	results := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	workers := p.workerCount
	if workers > len(tasks) {
		workers = len(tasks)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				results <- Result{Name: task.Name, Err: run(ctx, task)}
			}
		}()
	}

dispatch:
	for i, task := range tasks {
		select {
		case queue <- task:
		case <-ctx.Done():
			for _, skipped := range tasks[i:] {
				results <- Result{Name: skipped.Name, Err: ctx.Err()}
			}
			break dispatch
		}
	}
	close(queue)
	wg.Wait()
	close(results)

	settled := make(map[string]Result, len(tasks))
	for result := range results {
		settled[result.Name] = result
	}
	return settled
}

func run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Execute(ctx)
}

// FirstError returns the first failure in tasks order, if any.
func FirstError(tasks []Task, results map[string]Result) error {
	for _, task := range tasks {
		if res, ok := results[task.Name]; ok && res.Err != nil {
			return fmt.Errorf("%s: %w", task.Name, res.Err)
		}
	}
	return nil
}
