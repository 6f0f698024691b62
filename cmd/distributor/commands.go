package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"distributor/internal/archive"
	"distributor/internal/blob"
	"distributor/internal/distributor"
	"distributor/pkg/domain"
)

func runNewAddress(_ context.Context, args []string, out io.Writer) error {
	fs, _ := newFlagSet("new-address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return printJSON(out, map[string]domain.Address{"address": domain.NewAddress()})
}

func runDeployToken(ctx context.Context, args []string, out io.Writer) error {
	fs, g := newFlagSet("deploy-token")
	adminFlag := fs.String("admin", "", "token admin address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	admin, err := parseAddressFlag("admin", *adminFlag)
	if err != nil {
		return err
	}
	return withApp(ctx, g, func(a *app) error {
		if err := a.token.Deploy(ctx, admin); err != nil {
			return err
		}
		return printJSON(out, map[string]domain.Address{"token": a.token.Address(), "admin": admin})
	})
}

func runMint(ctx context.Context, args []string, out io.Writer) error {
	fs, g := newFlagSet("mint")
	signerFlag := fs.String("signer", "", "token admin address")
	toFlag := fs.String("to", "", "recipient address (default: the distributor contract)")
	amountFlag := fs.Int64("amount", 0, "amount to mint")
	if err := fs.Parse(args); err != nil {
		return err
	}
	signer, err := parseAddressFlag("signer", *signerFlag)
	if err != nil {
		return err
	}
	return withApp(ctx, g, func(a *app) error {
		to := a.dist.Address()
		if *toFlag != "" {
			if to, err = parseAddressFlag("to", *toFlag); err != nil {
				return err
			}
		}
		if err := a.token.Mint(ctx, signer, to, domain.Amount(*amountFlag)); err != nil {
			return err
		}
		balance, err := a.token.Balance(ctx, to)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"holder": to, "balance": balance})
	})
}

func runInit(ctx context.Context, args []string, out io.Writer) error {
	fs, g := newFlagSet("init")
	adminFlag := fs.String("admin", "", "distribution admin address")
	tokenAddrFlag := fs.String("token-address", "", "token address (default: the deployed token contract)")
	deadlineFlag := fs.Uint32("deadline", 0, "absolute deadline height")
	daysFlag := fs.Uint32("deadline-days", 0, "deadline as days of ledgers from the current height")
	if err := fs.Parse(args); err != nil {
		return err
	}
	admin, err := parseAddressFlag("admin", *adminFlag)
	if err != nil {
		return err
	}
	if (*deadlineFlag == 0) == (*daysFlag == 0) {
		return errors.New("exactly one of --deadline and --deadline-days is required")
	}
	return withApp(ctx, g, func(a *app) error {
		tokenAddr := a.token.Address()
		if *tokenAddrFlag != "" {
			if tokenAddr, err = parseAddressFlag("token-address", *tokenAddrFlag); err != nil {
				return err
			}
		}
		deadline := domain.Height(*deadlineFlag)
		if *daysFlag != 0 {
			deadline = a.host.Height() + domain.Height(*daysFlag*distributor.DayInLedgers)
		}
		if err := a.dist.Initialize(ctx, tokenAddr, admin, deadline); err != nil {
			return err
		}
		st, err := a.dist.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, st)
	})
}

func runAllocate(ctx context.Context, args []string, out io.Writer) error {
	fs, g := newFlagSet("allocate")
	signerFlag := fs.String("signer", "", "admin address")
	fileFlag := fs.String("file", "-", "CSV file of address,amount rows (- for stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	signer, err := parseAddressFlag("signer", *signerFlag)
	if err != nil {
		return err
	}
	var r io.Reader = os.Stdin
	if *fileFlag != "-" {
		f, err := os.Open(*fileFlag)
		if err != nil {
			return fmt.Errorf("open allocations: %w", err)
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	entries, err := parseAllocations(r)
	if err != nil {
		return err
	}
	return withApp(ctx, g, func(a *app) error {
		if err := a.dist.SetDistribution(ctx, signer, entries); err != nil {
			return err
		}
		return printJSON(out, map[string]int{"allocations": len(entries)})
	})
}

// parseAllocations reads address,amount rows. A first row whose amount is
// not a number is treated as a header; blank lines and # comments are skipped.
func parseAllocations(r io.Reader) ([]distributor.Allocation, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true
	var out []distributor.Allocation
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read allocations: %w", err)
		}
		amount, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("allocations row %d: amount %q: %w", line, rec[1], err)
		}
		user, err := domain.ParseAddress(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("allocations row %d: %w", line, err)
		}
		out = append(out, distributor.Allocation{User: user, Amount: domain.Amount(amount)})
	}
	if len(out) == 0 {
		return nil, errors.New("no allocations found")
	}
	return out, nil
}

func runFinalize(ctx context.Context, args []string, out io.Writer) error {
	fs, g := newFlagSet("finalize")
	signerFlag := fs.String("signer", "", "admin address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	signer, err := parseAddressFlag("signer", *signerFlag)
	if err != nil {
		return err
	}
	return withApp(ctx, g, func(a *app) error {
		if err := a.dist.Finalize(ctx, signer); err != nil {
			return err
		}
		st, err := a.dist.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, st)
	})
}

func runSetAdmin(ctx context.Context, args []string, out io.Writer) error {
	fs, g := newFlagSet("set-admin")
	signerFlag := fs.String("signer", "", "current admin address")
	adminFlag := fs.String("admin", "", "new admin address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	signer, err := parseAddressFlag("signer", *signerFlag)
	if err != nil {
		return err
	}
	admin, err := parseAddressFlag("admin", *adminFlag)
	if err != nil {
		return err
	}
	return withApp(ctx, g, func(a *app) error {
		if err := a.dist.SetAdmin(ctx, signer, admin); err != nil {
			return err
		}
		return printJSON(out, map[string]domain.Address{"admin": admin})
	})
}

func runClaim(ctx context.Context, args []string, out io.Writer) error {
	fs, g := newFlagSet("claim")
	userFlag := fs.String("user", "", "recipient address; signs the claim")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := parseAddressFlag("user", *userFlag)
	if err != nil {
		return err
	}
	return withApp(ctx, g, func(a *app) error {
		amount, err := a.dist.Claim(ctx, user)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"user": user, "amount": amount})
	})
}

func runRefund(ctx context.Context, args []string, out io.Writer) error {
	fs, g := newFlagSet("refund")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withApp(ctx, g, func(a *app) error {
		amount, err := a.dist.Refund(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]domain.Amount{"amount": amount})
	})
}

func runStatus(ctx context.Context, args []string, out io.Writer) error {
	fs, g := newFlagSet("status")
	userFlag := fs.String("user", "", "also report this recipient's allocation and claim")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withApp(ctx, g, func(a *app) error {
		st, err := a.dist.Status(ctx)
		if err != nil {
			return err
		}
		if *userFlag == "" {
			return printJSON(out, st)
		}
		user, err := parseAddressFlag("user", *userFlag)
		if err != nil {
			return err
		}
		allocation, err := a.dist.GetAllocation(ctx, user)
		if err != nil {
			return err
		}
		claimed, err := a.dist.GetClaimed(ctx, user)
		if err != nil {
			return err
		}
		return printJSON(out, map[string]any{"status": st, "user": user, "allocation": allocation, "claimed": claimed})
	})
}

func runAdvance(ctx context.Context, args []string, out io.Writer) error {
	fs, g := newFlagSet("advance")
	ticksFlag := fs.Uint32("ticks", 1, "ledgers to close")
	daysFlag := fs.Uint32("days", 0, "days of ledgers to close, added to --ticks")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ticks := uint64(*ticksFlag) + uint64(*daysFlag)*uint64(distributor.DayInLedgers)
	if ticks > uint64(^uint32(0)) {
		return fmt.Errorf("cannot advance %d ledgers at once", ticks)
	}
	return withApp(ctx, g, func(a *app) error {
		closed, err := a.host.Advance(ctx, uint32(ticks))
		if err != nil {
			return err
		}
		return printJSON(out, closed)
	})
}

func runSnapshot(ctx context.Context, args []string, out io.Writer) error {
	fs, g := newFlagSet("snapshot")
	keepFlag := fs.Int("keep", 0, "prune all but the newest N snapshots after writing (0 keeps everything)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withApp(ctx, g, func(a *app) error {
		exporter, ok := a.store.(archive.Exporter)
		if !ok {
			return fmt.Errorf("storage driver %s cannot export snapshots", a.storage.Driver)
		}
		blobs, err := blob.Open(ctx, blob.ConfigFromEnv())
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		info, err := archive.ExportSnapshot(ctx, blobs, exporter, time.Now())
		if err != nil {
			return err
		}
		pruned := 0
		if *keepFlag > 0 {
			if pruned, err = archive.PruneSnapshots(ctx, blobs, *keepFlag); err != nil {
				return err
			}
		}
		return printJSON(out, map[string]any{"key": info.Key, "size_bytes": info.Size, "pruned": pruned})
	})
}
