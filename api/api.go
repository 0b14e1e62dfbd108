// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package api exposes the node's read-only admin surface over HTTP: node
// status, the replicated registry, live sessions, the token ledger and the
// governance pipeline.
package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/a2afabric/fabric/api/restutil"
	"github.com/a2afabric/fabric/fabric"
	"github.com/a2afabric/fabric/gov"
	"github.com/a2afabric/fabric/ledger"
	"github.com/a2afabric/fabric/log"
	"github.com/a2afabric/fabric/metrics"
	"github.com/a2afabric/fabric/ratelimit"
	"github.com/a2afabric/fabric/registry"
	"github.com/a2afabric/fabric/session"
)

var logger = log.WithContext("pkg", "api")

// Status is the node health snapshot served at /node/status.
type Status struct {
	NodeID          fabric.NodeID  `json:"node_id"`
	AgentID         fabric.AgentID `json:"agent_id"`
	ProtocolVersion string         `json:"protocol_version"`
	StartedAt       time.Time      `json:"started_at"`
	RegistrySize    int            `json:"registry_size"`
	ActiveSessions  int            `json:"active_sessions"`
	TotalSupply     uint64         `json:"total_supply"`
}

// Network reports node-level state the handlers cannot derive themselves.
type Network interface {
	Status() Status
}

// Options tunes the admin API.
type Options struct {
	AllowedOrigins  string
	EnableMetrics   bool
	EnableReqLogger bool
	// requests per second and burst per client address; zero disables
	RateLimit float64
	RateBurst int64
}

type api struct {
	nw       Network
	reg      *registry.Registry
	sessions *session.Manager
	book     *ledger.Ledger
	gov      *gov.Manager
}

// New builds the admin API handler.
func New(
	nw Network,
	reg *registry.Registry,
	sessions *session.Manager,
	book *ledger.Ledger,
	govMgr *gov.Manager,
	opts Options,
) http.HandlerFunc {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	a := &api{nw: nw, reg: reg, sessions: sessions, book: book, gov: govMgr}

	router := mux.NewRouter()
	a.mount(router)

	if opts.EnableMetrics {
		if h := metrics.HTTPHandler(); h != nil {
			router.Path("/metrics").Handler(h)
		}
	}

	var handler http.Handler = router
	if opts.RateLimit > 0 {
		handler = rateLimitHandler(handler, opts.RateLimit, opts.RateBurst)
	}
	handler = handlers.CompressHandler(handler)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
	)(handler)
	if opts.EnableReqLogger {
		handler = requestLoggerHandler(handler)
	}
	return handler.ServeHTTP
}

func (a *api) mount(router *mux.Router) {
	sub := router.PathPrefix("/").Subrouter()
	sub.Path("/node/status").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleNodeStatus))
	sub.Path("/registry/entries").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleRegistryEntries))
	sub.Path("/registry/entries/{id}").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleRegistryEntry))
	sub.Path("/registry/search").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleRegistrySearch))
	sub.Path("/sessions").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleSessions))
	sub.Path("/ledger/supply").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleLedgerSupply))
	sub.Path("/ledger/accounts/{id}").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleLedgerAccount))
	sub.Path("/gov/proposals").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleProposals))
	sub.Path("/gov/proposals/{id}").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleProposal))
	sub.Path("/gov/queue").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(a.handleQueue))
}

func (a *api) handleNodeStatus(w http.ResponseWriter, _ *http.Request) error {
	return restutil.WriteJSON(w, a.nw.Status())
}

func (a *api) handleRegistryEntries(w http.ResponseWriter, _ *http.Request) error {
	return restutil.WriteJSON(w, a.reg.Entries())
}

func (a *api) handleRegistryEntry(w http.ResponseWriter, req *http.Request) error {
	id := mux.Vars(req)["id"]
	entry, err := a.reg.Get(fabric.AgentID(id))
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, entry)
}

func (a *api) handleRegistrySearch(w http.ResponseWriter, req *http.Request) error {
	capability := req.URL.Query().Get("capability")
	if capability == "" {
		return restutil.BadRequest(errors.New("capability query parameter required"))
	}
	return restutil.WriteJSON(w, a.reg.FindByCapability(capability))
}

func (a *api) handleSessions(w http.ResponseWriter, _ *http.Request) error {
	return restutil.WriteJSON(w, a.sessions.Sessions())
}

func (a *api) handleLedgerSupply(w http.ResponseWriter, _ *http.Request) error {
	return restutil.WriteJSON(w, restutil.M{
		"total_supply": a.book.TotalSupply(),
		"accounts":     len(a.book.Accounts()),
	})
}

func (a *api) handleLedgerAccount(w http.ResponseWriter, req *http.Request) error {
	id := mux.Vars(req)["id"]
	return restutil.WriteJSON(w, restutil.M{
		"account": id,
		"balance": a.book.Balance(id),
	})
}

func (a *api) handleProposals(w http.ResponseWriter, _ *http.Request) error {
	return restutil.WriteJSON(w, a.gov.Proposals())
}

func (a *api) handleProposal(w http.ResponseWriter, req *http.Request) error {
	id := mux.Vars(req)["id"]
	p, err := a.gov.Get(fabric.ProposalID(id))
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, p)
}

func (a *api) handleQueue(w http.ResponseWriter, _ *http.Request) error {
	return restutil.WriteJSON(w, a.gov.Queued())
}

// rateLimitHandler enforces a per-client-address token bucket.
func rateLimitHandler(next http.Handler, rate float64, burst int64) http.Handler {
	limiter := ratelimit.New(rate, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		host, _, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			host = req.RemoteAddr
		}
		if !limiter.Allow(host) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func requestLoggerHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		logger.Debug("request handled",
			"method", req.Method, "path", req.URL.Path, "elapsed", time.Since(start))
	})
}
