// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package kv defines the key-value store consumed by the registry, session
// table, escrow, governance and ledger, plus a leveldb-backed engine.
package kv

// Getter wraps methods for getting kvs.
type Getter interface {
	// Get value for given key.
	// An error is returned if key not found. It can be checked via IsNotFound.
	Get(key []byte) (value []byte, err error)
	Has(key []byte) (bool, error)
	IsNotFound(err error) bool
}

// Putter wraps methods for putting kvs.
type Putter interface {
	Put(key, val []byte) error
	Delete(key []byte) error
}

// GetPutter wraps methods for getting/putting kvs.
type GetPutter interface {
	Getter
	Putter
}

// Range is the key range, [Start, Limit).
type Range struct {
	Start []byte
	Limit []byte
}

// Iterator iterates over kv pairs.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Store defines the full functional kv store.
//
// PutIf is the compare-and-swap primitive the ledger relies on: the write
// happens only when the current value of key equals expected (nil expected
// means key absent). Engines that cannot do this natively serialize PutIf
// internally.
type Store interface {
	GetPutter

	PutIf(key, expected, val []byte) (swapped bool, err error)
	Iterate(r Range) Iterator
	Close() error
}
