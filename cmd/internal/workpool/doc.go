// Package workpool runs submitted units of work on bounded pools of goroutines.
//
// A Pool grows from CoreSize to MaxSize workers as its queue fills. When the
// queue is full and MaxSize workers are busy the submitting goroutine runs the
// unit itself, so work is never rejected while the pool is open.
//
// Every unit receives a context that is cancelled when the unit's Future is
// cancelled or when Shutdown gives up waiting.
package workpool
