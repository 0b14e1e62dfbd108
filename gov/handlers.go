// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package gov

import (
	"encoding/json"
	"sync"

	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/ledger"
	"github.com/a2afabric/fabric/registry"
)

// param accessors: action params travel as JSON, so numbers may arrive as
// float64 or json.Number.

func paramString(a Action, key string) (string, error) {
	v, ok := a.Params[key]
	if !ok {
		return "", errs.Errorf(errs.InvalidArgument, "%s.%s: missing param %q", a.TargetNamespace, a.Method, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", errs.Errorf(errs.InvalidArgument, "%s.%s: param %q not a string", a.TargetNamespace, a.Method, key)
	}
	return s, nil
}

func paramUint64(a Action, key string) (uint64, error) {
	v, ok := a.Params[key]
	if !ok {
		return 0, errs.Errorf(errs.InvalidArgument, "%s.%s: missing param %q", a.TargetNamespace, a.Method, key)
	}
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int:
		if n < 0 {
			return 0, errs.Errorf(errs.InvalidArgument, "%s.%s: param %q negative", a.TargetNamespace, a.Method, key)
		}
		return uint64(n), nil
	case float64:
		if n < 0 || n != float64(uint64(n)) {
			return 0, errs.Errorf(errs.InvalidArgument, "%s.%s: param %q not a whole non-negative number", a.TargetNamespace, a.Method, key)
		}
		return uint64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil || i < 0 {
			return 0, errs.Errorf(errs.InvalidArgument, "%s.%s: param %q not a valid amount", a.TargetNamespace, a.Method, key)
		}
		return uint64(i), nil
	default:
		return 0, errs.Errorf(errs.InvalidArgument, "%s.%s: param %q has unsupported type", a.TargetNamespace, a.Method, key)
	}
}

// LedgerHandler executes treasury actions: mint, burn and transfer.
// Compensation applies the inverse movement.
type LedgerHandler struct {
	book *ledger.Ledger
}

// NewLedgerHandler wraps book for the "ledger" namespace.
func NewLedgerHandler(book *ledger.Ledger) *LedgerHandler {
	return &LedgerHandler{book: book}
}

func (h *LedgerHandler) Execute(a Action) error { return h.apply(a, false) }

func (h *LedgerHandler) Compensate(a Action) error { return h.apply(a, true) }

func (h *LedgerHandler) apply(a Action, invert bool) error {
	ref := "gov:" + a.Method
	if invert {
		ref += ":rollback"
	}
	switch a.Method {
	case "mint", "burn":
		account, err := paramString(a, "account")
		if err != nil {
			return err
		}
		amount, err := paramUint64(a, "amount")
		if err != nil {
			return err
		}
		mint := a.Method == "mint"
		if invert {
			mint = !mint
		}
		if mint {
			return h.book.Mint(account, amount, ref)
		}
		return h.book.Burn(account, amount, ref)
	case "transfer":
		from, err := paramString(a, "from")
		if err != nil {
			return err
		}
		to, err := paramString(a, "to")
		if err != nil {
			return err
		}
		amount, err := paramUint64(a, "amount")
		if err != nil {
			return err
		}
		if invert {
			from, to = to, from
		}
		return h.book.Transfer(from, to, amount, ref)
	default:
		return errs.Errorf(errs.InvalidArgument, "unknown ledger method %q", a.Method)
	}
}

// RegistryHandler executes registry actions: suspend and activate an
// entry. Compensation applies the opposite status.
type RegistryHandler struct {
	reg *registry.Registry
}

// NewRegistryHandler wraps reg for the "registry" namespace.
func NewRegistryHandler(reg *registry.Registry) *RegistryHandler {
	return &RegistryHandler{reg: reg}
}

func (h *RegistryHandler) Execute(a Action) error { return h.apply(a, false) }

func (h *RegistryHandler) Compensate(a Action) error { return h.apply(a, true) }

func (h *RegistryHandler) apply(a Action, invert bool) error {
	entity, err := paramString(a, "entity_id")
	if err != nil {
		return err
	}
	suspend := false
	switch a.Method {
	case "suspend":
		suspend = true
	case "activate":
	default:
		return errs.Errorf(errs.InvalidArgument, "unknown registry method %q", a.Method)
	}
	if invert {
		suspend = !suspend
	}
	if suspend {
		return h.reg.Suspend(fabric.AgentID(entity))
	}
	return h.reg.Activate(fabric.AgentID(entity))
}

// ParamsHandler executes parameter-store actions: set key to value.
// Compensation restores the value the key had before the set.
type ParamsHandler struct {
	mu     sync.Mutex
	values map[string]any
	// previous values by key, recorded at Execute for Compensate
	prev map[string]any
}

// NewParamsHandler creates a parameter store seeded with initial values.
func NewParamsHandler(initial map[string]any) *ParamsHandler {
	values := make(map[string]any, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &ParamsHandler{values: values, prev: make(map[string]any)}
}

// Get returns a parameter value.
func (h *ParamsHandler) Get(key string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.values[key]
	return v, ok
}

func (h *ParamsHandler) Execute(a Action) error {
	if a.Method != "set" {
		return errs.Errorf(errs.InvalidArgument, "unknown params method %q", a.Method)
	}
	key, err := paramString(a, "key")
	if err != nil {
		return err
	}
	value, ok := a.Params["value"]
	if !ok {
		return errs.Errorf(errs.InvalidArgument, "params.set: missing param %q", "value")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if old, exists := h.values[key]; exists {
		h.prev[key] = old
	} else {
		h.prev[key] = nil
	}
	h.values[key] = value
	return nil
}

func (h *ParamsHandler) Compensate(a Action) error {
	key, err := paramString(a, "key")
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	old, ok := h.prev[key]
	if !ok {
		return errs.Errorf(errs.PreconditionFailed, "params.set: no recorded previous value for %q", key)
	}
	if old == nil {
		delete(h.values, key)
	} else {
		h.values[key] = old
	}
	delete(h.prev, key)
	return nil
}
