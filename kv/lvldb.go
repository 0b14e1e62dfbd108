// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lvlerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	writeOpt = &opt.WriteOptions{}
	readOpt  = &opt.ReadOptions{}
)

// implements Store interface
type lvldb struct {
	db *leveldb.DB

	// serializes PutIf read-compare-write sequences
	casLock sync.Mutex
}

func openLevelDB(stg storage.Storage, cacheSize, openFilesCacheCapacity int) (*lvldb, error) {
	if cacheSize < 128 {
		cacheSize = 128
	}
	if openFilesCacheCapacity < 64 {
		openFilesCacheCapacity = 64
	}

	db, err := leveldb.Open(stg, &opt.Options{
		OpenFilesCacheCapacity: openFilesCacheCapacity,
		BlockCacheCapacity:     cacheSize / 2 * opt.MiB,
		WriteBuffer:            cacheSize / 4 * opt.MiB, // Two of these are used internally
		Filter:                 filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open level db")
	}
	return &lvldb{db: db}, nil
}

// OpenLevelDB opens (creating if absent) a persistent leveldb-backed store.
func OpenLevelDB(path string, cacheSize, openFilesCacheCapacity int) (Store, error) {
	stg, err := storage.OpenFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "open level db file")
	}
	return openLevelDB(stg, cacheSize, openFilesCacheCapacity)
}

// NewMem creates an in-memory store, for tests and ephemeral nodes.
func NewMem() Store {
	db, err := openLevelDB(storage.NewMemStorage(), 128, 0)
	if err != nil {
		// mem storage never fails to open
		panic(err)
	}
	return db
}

func (l *lvldb) Get(key []byte) ([]byte, error) {
	return l.db.Get(key, readOpt)
}

func (l *lvldb) Has(key []byte) (bool, error) {
	return l.db.Has(key, readOpt)
}

func (l *lvldb) IsNotFound(err error) bool {
	return errors.Is(err, lvlerrors.ErrNotFound)
}

func (l *lvldb) Put(key, val []byte) error {
	return l.db.Put(key, val, writeOpt)
}

func (l *lvldb) Delete(key []byte) error {
	return l.db.Delete(key, writeOpt)
}

func (l *lvldb) PutIf(key, expected, val []byte) (bool, error) {
	l.casLock.Lock()
	defer l.casLock.Unlock()

	cur, err := l.db.Get(key, readOpt)
	if err != nil {
		if !errors.Is(err, lvlerrors.ErrNotFound) {
			return false, err
		}
		cur = nil
	}
	if !bytes.Equal(cur, expected) {
		return false, nil
	}
	if err := l.db.Put(key, val, writeOpt); err != nil {
		return false, err
	}
	return true, nil
}

func (l *lvldb) Iterate(r Range) Iterator {
	return l.db.NewIterator(&util.Range{Start: r.Start, Limit: r.Limit}, readOpt)
}

func (l *lvldb) Close() error {
	return l.db.Close()
}
