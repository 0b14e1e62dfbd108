// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package transport moves encoded messages between fabric endpoints. Any
// reliable bidirectional byte transport works; duplicates are tolerated by
// the replay layer above.
package transport

import (
	"context"
	"sync"

	"github.com/a2afabric/fabric/errs"
)

// Transport delivers opaque message bytes to endpoints and surfaces
// inbound bytes on a single channel.
type Transport interface {
	// Send delivers data to the endpoint. Transient failures return an
	// Unavailable error; the caller decides whether to retry.
	Send(ctx context.Context, endpoint string, data []byte) error
	// Inbox streams inbound messages. Closed when the transport closes.
	Inbox() <-chan []byte
	Close() error
}

// Network is an in-process transport fabric for tests and single-process
// deployments: endpoints are names, delivery is a channel hop.
type Network struct {
	mu     sync.RWMutex
	peers  map[string]*Peer
	closed bool
}

// NewNetwork creates an empty in-process network.
func NewNetwork() *Network {
	return &Network{peers: make(map[string]*Peer)}
}

// Endpoint attaches a named peer to the network.
func (n *Network) Endpoint(name string) (*Peer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil, errs.New(errs.Unavailable, "network closed")
	}
	if _, ok := n.peers[name]; ok {
		return nil, errs.Errorf(errs.PreconditionFailed, "endpoint %s taken", name)
	}
	p := &Peer{net: n, name: name, inbox: make(chan []byte, 64)}
	n.peers[name] = p
	return p, nil
}

// Close tears down all peers.
func (n *Network) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return
	}
	n.closed = true
	for _, p := range n.peers {
		close(p.inbox)
	}
	n.peers = nil
}

// Peer is one endpoint on an in-process network.
type Peer struct {
	net   *Network
	name  string
	inbox chan []byte
	once  sync.Once
}

var _ Transport = (*Peer)(nil)

// Name returns the endpoint name.
func (p *Peer) Name() string { return p.name }

// Send implements Transport.
func (p *Peer) Send(ctx context.Context, endpoint string, data []byte) error {
	p.net.mu.RLock()
	target, ok := p.net.peers[endpoint]
	p.net.mu.RUnlock()
	if !ok {
		return errs.Errorf(errs.Unavailable, "no endpoint %s", endpoint)
	}

	// hand off a copy so the sender can reuse its buffer
	buf := append([]byte(nil), data...)
	select {
	case target.inbox <- buf:
		return nil
	case <-ctx.Done():
		return errs.WithKind(ctx.Err(), errs.Cancelled)
	}
}

// Inbox implements Transport.
func (p *Peer) Inbox() <-chan []byte { return p.inbox }

// Close detaches the peer from the network.
func (p *Peer) Close() error {
	p.once.Do(func() {
		p.net.mu.Lock()
		defer p.net.mu.Unlock()
		if !p.net.closed {
			delete(p.net.peers, p.name)
			close(p.inbox)
		}
	})
	return nil
}
