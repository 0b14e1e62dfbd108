// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package errs

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(InsufficientFunds, "balance 10 < 100")
	assert.Equal(t, InsufficientFunds, KindOf(err))
	assert.True(t, IsKind(err, InsufficientFunds))

	wrapped := errors.WithMessage(err, "lock escrow")
	assert.Equal(t, InsufficientFunds, KindOf(wrapped))

	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.Equal(t, Unknown, KindOf(nil))
}

func TestWithKindNil(t *testing.T) {
	assert.Nil(t, WithKind(nil, Internal))
}

func TestTransientAndSecurity(t *testing.T) {
	assert.True(t, Unavailable.Transient())
	assert.True(t, RateLimited.Transient())
	assert.False(t, Internal.Transient())

	assert.True(t, AuthenticationFailed.Security())
	assert.True(t, ReplayDetected.Security())
	assert.False(t, NotFound.Security())
}

func TestOpaque(t *testing.T) {
	err := Opaque(errors.New("nil pointer in merge"))
	assert.Equal(t, Internal, KindOf(err))
	assert.NotContains(t, err.Error(), "pointer")
	assert.Nil(t, Opaque(nil))
}
