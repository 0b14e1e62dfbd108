// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package transport

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/a2afabric/fabric/co"
	"github.com/a2afabric/fabric/errs"
	"github.com/a2afabric/fabric/log"
	"github.com/a2afabric/fabric/metrics"
)

var logger = log.WithContext("pkg", "transport")

var (
	metricWSIn  = metrics.LazyLoadCounter("transport_ws_recv_count")
	metricWSOut = metrics.LazyLoadCounter("transport_ws_send_count")
)

const (
	// Path is the websocket route fabric peers connect to.
	Path = "/fabric"

	wsWriteTimeout  = 10 * time.Second
	wsMaxMessageLen = 1 << 20 // generous; chunker keeps frames under the MTU
)

// wsConn serializes writes on one websocket connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)) //nolint:errcheck
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// WS is the websocket transport: it listens for inbound peers and dials
// outbound ones, multiplexing everything onto one inbox.
type WS struct {
	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
	inbox    chan []byte

	mu    sync.Mutex
	dials map[string]*wsConn // by endpoint
	conns map[*websocket.Conn]struct{}

	goes   co.Goes
	closed chan struct{}
	once   sync.Once
}

var _ Transport = (*WS)(nil)

// ListenWS starts a websocket transport on addr (e.g. ":7671").
func ListenWS(addr string) (*WS, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "listen websocket transport")
	}
	w := &WS{
		listener: listener,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		inbox:    make(chan []byte, 256),
		dials:    make(map[string]*wsConn),
		conns:    make(map[*websocket.Conn]struct{}),
		closed:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, w.serve)
	w.server = &http.Server{Handler: mux}

	w.goes.Go(func() {
		if err := w.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("websocket server stopped", "err", err)
		}
	})
	logger.Info("websocket transport listening", "addr", listener.Addr())
	return w, nil
}

// Addr returns the bound listen address.
func (w *WS) Addr() string { return w.listener.Addr().String() }

func (w *WS) serve(rw http.ResponseWriter, req *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		logger.Debug("websocket upgrade failed", "remote", req.RemoteAddr, "err", err)
		return
	}
	if !w.track(conn) {
		conn.Close()
		return
	}
	w.goes.Go(func() { w.readPump(conn) })
}

// track registers a live connection so Close can tear it down; accepted
// connections are hijacked and invisible to the http server.
func (w *WS) track(conn *websocket.Conn) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.closed:
		return false
	default:
	}
	w.conns[conn] = struct{}{}
	return true
}

func (w *WS) untrack(conn *websocket.Conn) {
	w.mu.Lock()
	delete(w.conns, conn)
	w.mu.Unlock()
}

// readPump drains one connection into the inbox until it breaks.
func (w *WS) readPump(conn *websocket.Conn) {
	defer conn.Close()
	defer w.untrack(conn)
	conn.SetReadLimit(wsMaxMessageLen)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		metricWSIn().Add(1)
		select {
		case w.inbox <- data:
		case <-w.closed:
			return
		}
	}
}

// Send implements Transport. The endpoint is a ws:// or wss:// URL; a
// bare host:port is dialed as ws.
func (w *WS) Send(ctx context.Context, endpoint string, data []byte) error {
	conn, err := w.dial(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := conn.write(data); err != nil {
		w.drop(endpoint, conn)
		return errs.WithKind(errors.Wrap(err, "websocket write"), errs.Unavailable)
	}
	metricWSOut().Add(1)
	return nil
}

func (w *WS) dial(ctx context.Context, endpoint string) (*wsConn, error) {
	w.mu.Lock()
	if c, ok := w.dials[endpoint]; ok {
		w.mu.Unlock()
		return c, nil
	}
	w.mu.Unlock()

	url := endpoint
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + endpoint + Path
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errs.WithKind(errors.Wrapf(err, "dial %s", endpoint), errs.Unavailable)
	}

	c := &wsConn{conn: conn}
	w.mu.Lock()
	if existing, ok := w.dials[endpoint]; ok {
		// lost the dial race
		w.mu.Unlock()
		conn.Close()
		return existing, nil
	}
	select {
	case <-w.closed:
		w.mu.Unlock()
		conn.Close()
		return nil, errs.New(errs.Unavailable, "transport closed")
	default:
	}
	w.dials[endpoint] = c
	w.conns[conn] = struct{}{}
	w.mu.Unlock()

	// dialed connections are bidirectional: drain replies too
	w.goes.Go(func() {
		w.readPump(conn)
		w.drop(endpoint, c)
	})
	return c, nil
}

func (w *WS) drop(endpoint string, c *wsConn) {
	w.mu.Lock()
	if w.dials[endpoint] == c {
		delete(w.dials, endpoint)
	}
	w.mu.Unlock()
	c.conn.Close()
}

// Inbox implements Transport.
func (w *WS) Inbox() <-chan []byte { return w.inbox }

// Close implements Transport.
func (w *WS) Close() error {
	w.once.Do(func() {
		close(w.closed)
		w.server.Close() //nolint:errcheck
		w.mu.Lock()
		for conn := range w.conns {
			conn.Close()
		}
		w.dials = map[string]*wsConn{}
		w.mu.Unlock()
		w.goes.Wait()
		close(w.inbox)
	})
	return nil
}
