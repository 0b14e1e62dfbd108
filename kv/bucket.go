// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

// Bucket provides logical bucket for kv store.
type Bucket string

// NewGetter creates a bucket getter from the given getter.
func (b Bucket) NewGetter(getter Getter) Getter {
	return &struct {
		getFunc
		hasFunc
		isNotFoundFunc
	}{
		func(key []byte) ([]byte, error) { return getter.Get(b.makeKey(key)) },
		func(key []byte) (bool, error) { return getter.Has(b.makeKey(key)) },
		getter.IsNotFound,
	}
}

// NewPutter creates a bucket putter from the given putter.
func (b Bucket) NewPutter(putter Putter) Putter {
	return &struct {
		putFunc
		deleteFunc
	}{
		func(key, val []byte) error { return putter.Put(b.makeKey(key), val) },
		func(key []byte) error { return putter.Delete(b.makeKey(key)) },
	}
}

// NewStore creates a bucket-scoped view of the given store. Iterate ranges
// and PutIf keys are all prefixed.
func (b Bucket) NewStore(store Store) Store {
	return &bucketStore{b, store}
}

func (b Bucket) makeKey(key []byte) []byte {
	newKey := make([]byte, 0, len(b)+len(key))
	return append(append(newKey, b...), key...)
}

type bucketStore struct {
	b     Bucket
	store Store
}

func (s *bucketStore) Get(key []byte) ([]byte, error) { return s.store.Get(s.b.makeKey(key)) }
func (s *bucketStore) Has(key []byte) (bool, error)   { return s.store.Has(s.b.makeKey(key)) }
func (s *bucketStore) IsNotFound(err error) bool      { return s.store.IsNotFound(err) }
func (s *bucketStore) Put(key, val []byte) error      { return s.store.Put(s.b.makeKey(key), val) }
func (s *bucketStore) Delete(key []byte) error        { return s.store.Delete(s.b.makeKey(key)) }
func (s *bucketStore) Close() error                   { return nil }

func (s *bucketStore) PutIf(key, expected, val []byte) (bool, error) {
	return s.store.PutIf(s.b.makeKey(key), expected, val)
}

func (s *bucketStore) Iterate(r Range) Iterator {
	pr := Range{Start: s.b.makeKey(r.Start)}
	if r.Limit != nil {
		pr.Limit = s.b.makeKey(r.Limit)
	} else {
		pr.Limit = prefixLimit([]byte(s.b))
	}
	return &bucketIterator{s.b, s.store.Iterate(pr)}
}

// prefixLimit returns the smallest key greater than every key with the
// given prefix, or nil if no such key exists.
func prefixLimit(prefix []byte) []byte {
	limit := append([]byte(nil), prefix...)
	for i := len(limit) - 1; i >= 0; i-- {
		if limit[i] < 0xff {
			limit[i]++
			return limit[:i+1]
		}
	}
	return nil
}

type bucketIterator struct {
	b Bucket
	Iterator
}

func (it *bucketIterator) Key() []byte {
	return it.Iterator.Key()[len(it.b):]
}

type (
	getFunc        func(key []byte) ([]byte, error)
	hasFunc        func(key []byte) (bool, error)
	isNotFoundFunc func(err error) bool
	putFunc        func(key, val []byte) error
	deleteFunc     func(key []byte) error
)

func (f getFunc) Get(key []byte) ([]byte, error) { return f(key) }
func (f hasFunc) Has(key []byte) (bool, error)   { return f(key) }
func (f isNotFoundFunc) IsNotFound(err error) bool {
	return f(err)
}
func (f putFunc) Put(key, val []byte) error { return f(key, val) }
func (f deleteFunc) Delete(key []byte) error {
	return f(key)
}
