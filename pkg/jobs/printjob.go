package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// printRunner prints its banner and then sleeps, honoring cancellation.
type printRunner struct {
	out     io.Writer
	message string
	sleep   time.Duration
}

func (p *printRunner) Run(ctx context.Context) (interface{}, error) {
	fmt.Fprintln(p.out, p.message)
	if p.sleep > 0 {
		timer := time.NewTimer(p.sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, nil
}

func (p *printRunner) Shutdown(ctx context.Context) error { return nil }

// NewPrintJob creates a job that prints a message to stdout and then sleeps
// for the given duration. Handy as a placeholder or for pacing a graph.
func NewPrintJob(message string, sleep time.Duration, opts ...JobOption) *Job {
	return NewPrintJobTo(os.Stdout, message, sleep, opts...)
}

// NewPrintJobTo is NewPrintJob writing to an explicit writer.
func NewPrintJobTo(w io.Writer, message string, sleep time.Duration, opts ...JobOption) *Job {
	return NewJob(&printRunner{out: w, message: message, sleep: sleep}, opts...)
}
