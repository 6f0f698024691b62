package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"distributor/internal/distributor"
	"distributor/pkg/domain"

	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) []byte {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out), strings.Join(args, " "))
	return out.Bytes()
}

func TestUsageAndUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), nil, &out))
	require.Contains(t, out.String(), "allocate")
	require.Contains(t, out.String(), "serve")

	err := run(context.Background(), []string{"bogus"}, &out)
	require.ErrorContains(t, err, `unknown command "bogus"`)
}

func TestParseAllocations(t *testing.T) {
	a, b := domain.NewAddress(), domain.NewAddress()
	in := "address,amount\n# team\n" + a.String() + ", 10\n\n" + b.String() + ",20\n"
	got, err := parseAllocations(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, []distributor.Allocation{{User: a, Amount: 10}, {User: b, Amount: 20}}, got)

	_, err = parseAllocations(strings.NewReader(a.String() + ",10\n" + b.String() + ",ten\n"))
	require.ErrorContains(t, err, "row 2")

	_, err = parseAllocations(strings.NewReader("nope,10\n"))
	require.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = parseAllocations(strings.NewReader("address,amount\n"))
	require.ErrorContains(t, err, "no allocations")

	_, err = parseAllocations(strings.NewReader(a.String() + ",10,extra\n"))
	require.Error(t, err)
}

func TestCommandRequiresFlags(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"claim", "--storage-driver", "memory"}, &out)
	require.ErrorContains(t, err, "--user is required")

	err = run(context.Background(), []string{"init", "--storage-driver", "memory", "--admin", domain.NewAddress().String()}, &out)
	require.ErrorContains(t, err, "exactly one of --deadline and --deadline-days")
}

func TestDistributionLifecycleAcrossInvocations(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DISTRIBUTOR_STORAGE_DRIVER", "sqlite")
	t.Setenv("DISTRIBUTOR_SQLITE_PATH", filepath.Join(dir, "ledger.db"))
	t.Setenv("DISTRIBUTOR_BLOB_DRIVER", "fs")
	t.Setenv("DISTRIBUTOR_BLOB_FS_ROOT", filepath.Join(dir, "blobs"))

	tokenAdmin, admin, user := domain.NewAddress(), domain.NewAddress(), domain.NewAddress()

	runCLI(t, "deploy-token", "--admin", tokenAdmin.String())
	runCLI(t, "mint", "--signer", tokenAdmin.String(), "--amount", "100")
	runCLI(t, "init", "--admin", admin.String(), "--deadline-days", "30")

	csvPath := filepath.Join(dir, "allocations.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("address,amount\n"+user.String()+",40\n"), 0o600))
	runCLI(t, "allocate", "--signer", admin.String(), "--file", csvPath)
	runCLI(t, "finalize", "--signer", admin.String())

	var claimed struct {
		Amount domain.Amount `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(runCLI(t, "claim", "--user", user.String()), &claimed))
	require.Equal(t, domain.Amount(40), claimed.Amount)

	var status struct {
		Status     distributor.Status `json:"status"`
		Allocation domain.Amount      `json:"allocation"`
		Claimed    bool               `json:"claimed"`
	}
	require.NoError(t, json.Unmarshal(runCLI(t, "status", "--user", user.String()), &status))
	require.True(t, status.Claimed)
	require.Equal(t, domain.Amount(40), status.Allocation)
	require.Equal(t, distributor.PhaseFinalized, status.Status.Phase)
	require.Equal(t, domain.ContractAddress(defaultDistributorLabel), status.Status.Contract)

	var closed domain.LedgerClose
	require.NoError(t, json.Unmarshal(runCLI(t, "advance", "--days", "31"), &closed))
	require.Equal(t, domain.Height(31*distributor.DayInLedgers+1), closed.Height)

	var refund struct {
		Amount domain.Amount `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(runCLI(t, "refund"), &refund))
	require.Equal(t, domain.Amount(60), refund.Amount)

	var snap struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(runCLI(t, "snapshot", "--keep", "1"), &snap))
	require.True(t, strings.HasPrefix(snap.Key, "snapshots/"), snap.Key)
}
