// Command remodel orchestrates the panel migration: it launches producer and
// consumer migration subprocesses from Redis work queues, terminates drained
// consumers, and provides the operator tooling around those queues.
package main

import (
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	_, _ = maxprocs.Set()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "remodel: %v\n", err)
		os.Exit(1)
	}
}
