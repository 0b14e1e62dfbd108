// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package ledger keeps the fabric's internal token balances. Tokens are an
// internal accounting unit: minted by governance, moved by transfers and
// escrow, never negative, conserved by every transfer.
package ledger

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/a2afabric/fabric/auditdb"
	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/kv"
	"github.com/a2afabric/fabric/log"
	"github.com/a2afabric/fabric/metrics"
)

var logger = log.WithContext("pkg", "ledger")

var (
	metricSupply    = metrics.LazyLoadGauge("ledger_total_supply")
	metricTransfers = metrics.LazyLoadCounterVec("ledger_op_count", []string{"op"})
)

// ops recorded in the audit trail.
const (
	OpMint     = "mint"
	OpBurn     = "burn"
	OpTransfer = "transfer"
)

var supplyKey = []byte("!supply")

// Ledger is the balance book. All mutations serialize on one mutex; the
// kv writes use compare-and-swap so a second process sharing the store
// fails loudly instead of silently corrupting balances.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]uint64
	supply   uint64
	store    kv.Store
	audit    *auditdb.AuditDB
}

// New loads a ledger from store (nil for in-memory only). audit may be nil.
func New(store kv.Store, audit *auditdb.AuditDB) (*Ledger, error) {
	l := &Ledger{
		balances: make(map[string]uint64),
		store:    store,
		audit:    audit,
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	if l.store == nil {
		return nil
	}
	it := l.store.Iterate(kv.Range{})
	defer it.Release()
	for it.Next() {
		if len(it.Value()) != 8 {
			return errs.Errorf(errs.Internal, "corrupt balance record %q", it.Key())
		}
		v := binary.BigEndian.Uint64(it.Value())
		if string(it.Key()) == string(supplyKey) {
			l.supply = v
			continue
		}
		l.balances[string(it.Key())] = v
	}
	if err := it.Error(); err != nil {
		return err
	}
	metricSupply().Set(int64(l.supply))
	return nil
}

// persist writes account's new balance with CAS against old. Must be called
// with l.mu held.
func (l *Ledger) persist(account string, old, val uint64, existed bool) error {
	if l.store == nil {
		return nil
	}
	var expected []byte
	if existed {
		expected = encodeBalance(old)
	}
	swapped, err := l.store.PutIf([]byte(account), expected, encodeBalance(val))
	if err != nil {
		return err
	}
	if !swapped {
		return errs.Errorf(errs.Internal, "ledger store mutated outside this process: %s", account)
	}
	return nil
}

func encodeBalance(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func (l *Ledger) persistSupply() {
	if l.store == nil {
		return
	}
	if err := l.store.Put(supplyKey, encodeBalance(l.supply)); err != nil {
		logger.Error("persist supply", "err", err)
	}
	metricSupply().Set(int64(l.supply))
}

func (l *Ledger) logOp(op, from, to string, amount uint64, reference string) {
	if l.audit == nil {
		return
	}
	if err := l.audit.LogLedger(&auditdb.LedgerEvent{
		Op: op, From: from, To: to, Amount: amount, Reference: reference,
	}); err != nil {
		logger.Error("audit ledger op", "op", op, "err", err)
	}
	metricTransfers().AddWithLabel(1, map[string]string{"op": op})
}

// Balance returns account's balance. Unknown accounts have balance zero.
func (l *Ledger) Balance(account string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account]
}

// TotalSupply returns the sum of all balances.
func (l *Ledger) TotalSupply() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply
}

// Accounts returns a snapshot of all non-zero accounts.
func (l *Ledger) Accounts() map[string]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]uint64, len(l.balances))
	for k, v := range l.balances {
		out[k] = v
	}
	return out
}

// reserved keys in the balance store start with '!'
func validAccount(account string) bool {
	return account != "" && account[0] != '!'
}

// Mint creates amount new tokens in account.
func (l *Ledger) Mint(account string, amount uint64, reference string) error {
	if !validAccount(account) {
		return errs.New(errs.InvalidArgument, "mint: invalid account")
	}
	if amount == 0 {
		return errs.New(errs.InvalidArgument, "mint: zero amount")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.supply > math.MaxUint64-amount {
		return errs.New(errs.PreconditionFailed, "mint would overflow total supply")
	}
	old, existed := l.balances[account]
	if err := l.persist(account, old, old+amount, existed); err != nil {
		return err
	}
	l.balances[account] = old + amount
	l.supply += amount
	l.persistSupply()
	l.logOp(OpMint, "", account, amount, reference)
	return nil
}

// Burn destroys amount tokens held by account.
func (l *Ledger) Burn(account string, amount uint64, reference string) error {
	if amount == 0 {
		return errs.New(errs.InvalidArgument, "burn: zero amount")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.balances[account]
	if old < amount {
		return errs.Errorf(errs.InsufficientFunds, "burn %d from %s holding %d", amount, account, old)
	}
	if err := l.persist(account, old, old-amount, true); err != nil {
		return err
	}
	l.setLocked(account, old-amount)
	l.supply -= amount
	l.persistSupply()
	l.logOp(OpBurn, account, "", amount, reference)
	return nil
}

// Transfer moves amount from one account to another. The total supply is
// unchanged; the transfer happens entirely or not at all.
func (l *Ledger) Transfer(from, to string, amount uint64, reference string) error {
	if !validAccount(from) || !validAccount(to) {
		return errs.New(errs.InvalidArgument, "transfer: invalid account")
	}
	if from == to {
		return errs.New(errs.InvalidArgument, "transfer: from equals to")
	}
	if amount == 0 {
		return errs.New(errs.InvalidArgument, "transfer: zero amount")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromOld := l.balances[from]
	if fromOld < amount {
		return errs.Errorf(errs.InsufficientFunds,
			"transfer %d from %s holding %d", amount, from, fromOld)
	}
	toOld, toExisted := l.balances[to]

	if err := l.persist(from, fromOld, fromOld-amount, true); err != nil {
		return err
	}
	if err := l.persist(to, toOld, toOld+amount, toExisted); err != nil {
		// roll the debit back so memory and store stay consistent
		if rbErr := l.persist(from, fromOld-amount, fromOld, true); rbErr != nil {
			logger.Error("transfer rollback failed", "from", from, "err", rbErr)
		}
		return err
	}

	l.setLocked(from, fromOld-amount)
	l.balances[to] = toOld + amount
	l.logOp(OpTransfer, from, to, amount, reference)
	return nil
}

// setLocked updates a balance, dropping zero entries. Must hold l.mu.
func (l *Ledger) setLocked(account string, val uint64) {
	if val == 0 {
		delete(l.balances, account)
		if l.store != nil {
			if err := l.store.Delete([]byte(account)); err != nil {
				logger.Error("delete zero balance", "account", account, "err", err)
			}
		}
		return
	}
	l.balances[account] = val
}
