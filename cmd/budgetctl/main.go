// Command budgetctl runs commands against the event store and reads the
// projected views. Operators use it to rewind or replay an aggregate whose
// state went wrong.
//
//	budgetctl commands
//	budgetctl exec CreditEnvelope < credit.json
//	budgetctl rewind -type envelope -id <uuid> -user <uuid> -at 2024-05-01T09:30:00Z
//	budgetctl replay -type budget-plan -id <uuid> -user <uuid>
//	budgetctl show -type ledger -id <uuid> -user <uuid>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "budgetctl: %v\n", err)
		os.Exit(1)
	}
}
