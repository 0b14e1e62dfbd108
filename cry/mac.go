// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cry

import (
	"crypto/hmac"
	"crypto/sha256"
)

// MAC computes HMAC-SHA256 of data under key. The handshake uses it for
// key-confirmation tokens.
func MAC(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// MACEqual compares two MACs in constant time.
func MACEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
