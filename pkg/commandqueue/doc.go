// Package commandqueue provides lane-based task execution with FIFO ordering per lane.
//
// Invariants:
// - Tasks in the same lane execute one at a time in submission order.
// - Tasks in different lanes may execute concurrently.
// - A panicking task is recovered and reported as an error; its lane keeps running.
//
// Usage:
//
//	queue := commandqueue.New(logger)
//	defer queue.Close()
//	err := queue.Enqueue(ctx, "chat:42", func(ctx context.Context) error {
//		return nil
//	})
package commandqueue
