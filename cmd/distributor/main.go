// Command distributor runs and administers a token distribution.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/joho/godotenv"
)

type command struct {
	summary string
	run     func(ctx context.Context, args []string, out io.Writer) error
}

var commands = map[string]command{
	"serve":        {"run the HTTP API and close ledgers on a timer", runServe},
	"new-address":  {"print a random address", runNewAddress},
	"deploy-token": {"deploy the token contract", runDeployToken},
	"mint":         {"mint tokens (token admin)", runMint},
	"init":         {"initialize the distribution", runInit},
	"allocate":     {"set allocations from a CSV of address,amount (admin)", runAllocate},
	"finalize":     {"freeze allocations and open claiming (admin)", runFinalize},
	"set-admin":    {"rotate the admin (admin)", runSetAdmin},
	"claim":        {"claim an allocation (recipient)", runClaim},
	"refund":       {"return the unclaimed balance to the admin after the deadline", runRefund},
	"status":       {"print the distribution status", runStatus},
	"advance":      {"close ledgers", runAdvance},
	"snapshot":     {"export the ledger to the blob store", runSnapshot},
}

func main() {
	// a missing .env file is fine
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(out)
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(ctx, args[1:], out)
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "usage: distributor <command> [flags]")
	fmt.Fprintln(out)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-13s %s\n", name, commands[name].summary)
	}
}
