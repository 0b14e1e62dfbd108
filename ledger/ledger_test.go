// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2afabric/fabric/auditdb"
	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/kv"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(nil, nil)
	require.NoError(t, err)
	return l
}

func TestMintAndBalance(t *testing.T) {
	l := newTestLedger(t)

	require.NoError(t, l.Mint("alpha", 1000, "genesis"))
	assert.Equal(t, uint64(1000), l.Balance("alpha"))
	assert.Equal(t, uint64(1000), l.TotalSupply())
	assert.Zero(t, l.Balance("unknown"))

	require.NoError(t, l.Mint("alpha", 500, ""))
	assert.Equal(t, uint64(1500), l.Balance("alpha"))

	assert.Equal(t, errs.InvalidArgument, errs.KindOf(l.Mint("", 1, "")))
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(l.Mint("alpha", 0, "")))
}

func TestTransferConservesSupply(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Mint("alpha", 1000, ""))

	require.NoError(t, l.Transfer("alpha", "beta", 300, "payment"))
	assert.Equal(t, uint64(700), l.Balance("alpha"))
	assert.Equal(t, uint64(300), l.Balance("beta"))
	assert.Equal(t, uint64(1000), l.TotalSupply())

	// draining an account removes it
	require.NoError(t, l.Transfer("beta", "gamma", 300, ""))
	assert.Zero(t, l.Balance("beta"))
	_, ok := l.Accounts()["beta"]
	assert.False(t, ok)
	assert.Equal(t, uint64(1000), l.TotalSupply())
}

func TestTransferInsufficientFunds(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Mint("alpha", 100, ""))

	err := l.Transfer("alpha", "beta", 101, "")
	assert.Equal(t, errs.InsufficientFunds, errs.KindOf(err))
	// nothing moved
	assert.Equal(t, uint64(100), l.Balance("alpha"))
	assert.Zero(t, l.Balance("beta"))

	err = l.Transfer("nobody", "beta", 1, "")
	assert.Equal(t, errs.InsufficientFunds, errs.KindOf(err))
}

func TestTransferValidation(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Mint("alpha", 100, ""))

	assert.Equal(t, errs.InvalidArgument, errs.KindOf(l.Transfer("alpha", "alpha", 10, "")))
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(l.Transfer("alpha", "", 10, "")))
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(l.Transfer("alpha", "beta", 0, "")))
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(l.Transfer("alpha", "!supply", 10, "")))
}

func TestBurn(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Mint("alpha", 1000, ""))

	require.NoError(t, l.Burn("alpha", 400, "slash"))
	assert.Equal(t, uint64(600), l.Balance("alpha"))
	assert.Equal(t, uint64(600), l.TotalSupply())

	assert.Equal(t, errs.InsufficientFunds, errs.KindOf(l.Burn("alpha", 601, "")))
}

func TestConcurrentTransfers(t *testing.T) {
	l := newTestLedger(t)
	require.NoError(t, l.Mint("alpha", 10_000, ""))
	require.NoError(t, l.Mint("beta", 10_000, ""))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Transfer("alpha", "beta", 1, "") //nolint:errcheck
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Transfer("beta", "alpha", 1, "") //nolint:errcheck
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(20_000), l.TotalSupply())
	assert.Equal(t, uint64(20_000), l.Balance("alpha")+l.Balance("beta"))
}

func TestPersistence(t *testing.T) {
	store := kv.NewMem()
	defer store.Close()

	l1, err := New(store, nil)
	require.NoError(t, err)
	require.NoError(t, l1.Mint("alpha", 1000, ""))
	require.NoError(t, l1.Transfer("alpha", "beta", 250, ""))

	l2, err := New(store, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(750), l2.Balance("alpha"))
	assert.Equal(t, uint64(250), l2.Balance("beta"))
	assert.Equal(t, uint64(1000), l2.TotalSupply())
}

func TestAuditTrail(t *testing.T) {
	audit, err := auditdb.NewMem()
	require.NoError(t, err)
	defer audit.Close()

	l, err := New(nil, audit)
	require.NoError(t, err)
	require.NoError(t, l.Mint("alpha", 1000, "genesis"))
	require.NoError(t, l.Transfer("alpha", "beta", 100, "task-1"))
	require.NoError(t, l.Burn("beta", 10, ""))

	events, err := audit.FilterLedger(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, OpBurn, events[0].Op)
	assert.Equal(t, OpTransfer, events[1].Op)
	assert.Equal(t, "task-1", events[1].Reference)
	assert.Equal(t, OpMint, events[2].Op)
}
