// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreBasic(t *testing.T) {
	s := NewMem()
	defer s.Close()

	_, err := s.Get([]byte("k"))
	assert.True(t, s.IsNotFound(err))

	require.NoError(t, s.Put([]byte("k"), []byte("v")))
	v, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	has, err := s.Has([]byte("k"))
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.Delete([]byte("k")))
	has, err = s.Has([]byte("k"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPutIf(t *testing.T) {
	s := NewMem()
	defer s.Close()

	// create when absent
	ok, err := s.PutIf([]byte("a"), nil, []byte("1"))
	require.NoError(t, err)
	assert.True(t, ok)

	// wrong expectation
	ok, err = s.PutIf([]byte("a"), []byte("0"), []byte("2"))
	require.NoError(t, err)
	assert.False(t, ok)
	v, _ := s.Get([]byte("a"))
	assert.Equal(t, []byte("1"), v)

	// correct expectation
	ok, err = s.PutIf([]byte("a"), []byte("1"), []byte("2"))
	require.NoError(t, err)
	assert.True(t, ok)
	v, _ = s.Get([]byte("a"))
	assert.Equal(t, []byte("2"), v)
}

func TestBucket(t *testing.T) {
	s := NewMem()
	defer s.Close()

	b1 := Bucket("b1-").NewStore(s)
	b2 := Bucket("b2-").NewStore(s)

	require.NoError(t, b1.Put([]byte("k"), []byte("v1")))
	require.NoError(t, b2.Put([]byte("k"), []byte("v2")))

	v, err := b1.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	// iteration sees only the bucket's keys, with the prefix stripped
	require.NoError(t, b1.Put([]byte("x"), []byte("y")))
	it := b1.Iterate(Range{})
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	it.Release()
	require.NoError(t, it.Error())
	assert.Equal(t, []string{"k", "x"}, keys)
}

func TestPrefixLimit(t *testing.T) {
	assert.Equal(t, []byte("c"), prefixLimit([]byte("b")))
	assert.Equal(t, []byte{0x01}, prefixLimit([]byte{0x00}))
	assert.Nil(t, prefixLimit([]byte{0xff, 0xff}))
	assert.Equal(t, []byte{0x01}, prefixLimit([]byte{0x00, 0xff}))
}
