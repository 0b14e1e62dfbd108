// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package chunker

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2afabric/fabric/errs"
)

func TestSplitReassemble(t *testing.T) {
	payload := make([]byte, 10_000)
	rand.New(rand.NewSource(1)).Read(payload)

	frames, err := Split(payload, 1024)
	require.NoError(t, err)
	assert.Len(t, frames, 10)

	r := NewReassembler(time.Minute)
	// deliver out of order
	order := rand.New(rand.NewSource(2)).Perm(len(frames))
	var got []byte
	for _, i := range order {
		out, err := r.Add(frames[i])
		require.NoError(t, err)
		if out != nil {
			got = out
		}
	}
	assert.True(t, bytes.Equal(payload, got))
	assert.Zero(t, r.Pending())
}

func TestSingleFrame(t *testing.T) {
	frames, err := Split([]byte("small"), 1024)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	r := NewReassembler(time.Minute)
	out, err := r.Add(frames[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("small"), out)
}

func TestDuplicateFrameRejected(t *testing.T) {
	frames, err := Split(make([]byte, 3000), 1024)
	require.NoError(t, err)
	require.True(t, len(frames) > 1)

	r := NewReassembler(time.Minute)
	_, err = r.Add(frames[0])
	require.NoError(t, err)
	_, err = r.Add(frames[0])
	assert.Equal(t, errs.ReplayDetected, errs.KindOf(err))
}

func TestBadFrames(t *testing.T) {
	r := NewReassembler(time.Minute)

	_, err := r.Add(Frame{TransferID: "t", Index: 2, Total: 2})
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))

	_, err = r.Add(Frame{TransferID: "t", Index: 0, Total: 0})
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))

	// corrupt compressed data
	frames, _ := Split([]byte("data"), 1024)
	frames[0].Data = []byte{0xff, 0xff, 0xff}
	_, err = r.Add(frames[0])
	assert.Equal(t, errs.InvalidArgument, errs.KindOf(err))
}

func TestReap(t *testing.T) {
	r := NewReassembler(time.Minute)
	now := time.Unix(0, 0)
	r.now = func() time.Time { return now }

	frames, _ := Split(make([]byte, 3000), 1024)
	_, err := r.Add(frames[0])
	require.NoError(t, err)
	assert.Equal(t, 1, r.Pending())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, r.Reap())
	assert.Zero(t, r.Pending())
}
