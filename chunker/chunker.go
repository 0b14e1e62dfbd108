// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package chunker frames payloads exceeding the transport MTU into
// sequenced, snappy-compressed chunks and reassembles them on the far side.
package chunker

import (
	"time"

	"github.com/golang/snappy"
	"github.com/pborman/uuid"

	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/fabric"
)

// Frame is one piece of a chunked transfer. Data is snappy-compressed.
type Frame struct {
	TransferID string `json:"transfer_id"`
	Index      int    `json:"index"`
	Total      int    `json:"total"`
	Data       []byte `json:"data"`
}

// Split cuts payload into frames of at most mtu plaintext bytes each.
// A payload within the MTU still yields a single frame, so callers can
// chunk unconditionally.
func Split(payload []byte, mtu int) ([]Frame, error) {
	if mtu <= 0 {
		mtu = fabric.ChunkMTU
	}
	if len(payload) == 0 {
		return nil, errs.New(errs.InvalidArgument, "empty payload")
	}

	total := (len(payload) + mtu - 1) / mtu
	id := uuid.NewRandom().String()
	frames := make([]Frame, 0, total)
	for i := 0; i < total; i++ {
		start := i * mtu
		end := min(start+mtu, len(payload))
		frames = append(frames, Frame{
			TransferID: id,
			Index:      i,
			Total:      total,
			Data:       snappy.Encode(nil, payload[start:end]),
		})
	}
	return frames, nil
}

type transfer struct {
	parts    [][]byte
	received int
	started  time.Time
}

// Reassembler collects frames until a transfer completes. Stale transfers
// are dropped after the configured timeout.
type Reassembler struct {
	timeout   time.Duration
	transfers map[string]*transfer
	now       func() time.Time
}

// NewReassembler creates a reassembler with the given per-transfer timeout.
func NewReassembler(timeout time.Duration) *Reassembler {
	return &Reassembler{
		timeout:   timeout,
		transfers: make(map[string]*transfer),
		now:       time.Now,
	}
}

// Add feeds one frame. When the frame completes its transfer, the full
// payload is returned; otherwise nil. Duplicate or out-of-range frames are
// rejected.
func (r *Reassembler) Add(f Frame) ([]byte, error) {
	if f.Total <= 0 || f.Index < 0 || f.Index >= f.Total {
		return nil, errs.Errorf(errs.InvalidArgument, "frame index %d out of range [0,%d)", f.Index, f.Total)
	}

	tr, ok := r.transfers[f.TransferID]
	if !ok {
		tr = &transfer{parts: make([][]byte, f.Total), started: r.now()}
		r.transfers[f.TransferID] = tr
	}
	if len(tr.parts) != f.Total {
		return nil, errs.Errorf(errs.InvalidArgument, "frame total %d conflicts with transfer", f.Total)
	}
	if tr.parts[f.Index] != nil {
		return nil, errs.Errorf(errs.ReplayDetected, "duplicate frame %d of transfer %s", f.Index, f.TransferID)
	}

	data, err := snappy.Decode(nil, f.Data)
	if err != nil {
		return nil, errs.WithKind(err, errs.InvalidArgument)
	}
	tr.parts[f.Index] = data
	tr.received++

	if tr.received < len(tr.parts) {
		return nil, nil
	}

	delete(r.transfers, f.TransferID)
	var size int
	for _, p := range tr.parts {
		size += len(p)
	}
	payload := make([]byte, 0, size)
	for _, p := range tr.parts {
		payload = append(payload, p...)
	}
	return payload, nil
}

// Reap drops transfers older than the timeout and returns how many were
// dropped. Called periodically by the owner.
func (r *Reassembler) Reap() int {
	cutoff := r.now().Add(-r.timeout)
	var dropped int
	for id, tr := range r.transfers {
		if tr.started.Before(cutoff) {
			delete(r.transfers, id)
			dropped++
		}
	}
	return dropped
}

// Pending returns the number of incomplete transfers.
func (r *Reassembler) Pending() int {
	return len(r.transfers)
}
