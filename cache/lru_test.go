// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrLoad(t *testing.T) {
	c, err := NewLRU(4)
	require.NoError(t, err)

	loads := 0
	loader := func(key interface{}) (interface{}, error) {
		loads++
		return key.(string) + "!", nil
	}

	v, err := c.GetOrLoad("a", loader)
	require.NoError(t, err)
	assert.Equal(t, "a!", v)

	v, err = c.GetOrLoad("a", loader)
	require.NoError(t, err)
	assert.Equal(t, "a!", v)
	assert.Equal(t, 1, loads)

	_, err = c.GetOrLoad("b", func(interface{}) (interface{}, error) {
		return nil, errors.New("boom")
	})
	assert.Error(t, err)
	_, ok := c.Get("b")
	assert.False(t, ok)
}
