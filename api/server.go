// Package api exposes the protocol's public operations over a plain
// HTTP/JSON surface, built on go-chi/chi/v5: one handler per operation,
// with auth middleware wrapping the single restricted route.
// Go has no canister call boundary or ambient caller-principal, so every
// update call takes its caller principal as an explicit request field and
// the restricted route authenticates via a bearer JWT instead.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"liquidneuron/conversion"
	"liquidneuron/core/state"
	"liquidneuron/eventlog"
	"liquidneuron/guard"
	"liquidneuron/proposal"
	"liquidneuron/rewards"
)

// Server wires the public API surface to the engines that implement it.
type Server struct {
	st             *state.Engine
	log            *eventlog.Log
	conv           *conversion.Engine
	prop           *proposal.Engine
	rewards        *rewards.Engine
	claimer        *conversion.Claimer
	principalGuard *guard.PrincipalGuard
	limiter        *principalLimiter
	auth           *jwtAuth

	mux *chi.Mux
}

// Config bundles Server's dependencies.
type Config struct {
	State      *state.Engine
	Log        *eventlog.Log
	Conversion *conversion.Engine
	Proposal   *proposal.Engine
	Rewards    *rewards.Engine
	Claimer    *conversion.Claimer

	// RequestsPerSecond and Burst configure the per-principal rate limiter
	// guarding update calls ahead of guard.PrincipalGuard.
	RequestsPerSecond float64
	Burst             int

	// JWTSigningKey and SecondaryDAOPrincipal configure the bearer-token
	// check on the restricted approve_proposal route.
	JWTSigningKey         string
	SecondaryDAOPrincipal string
}

// New constructs a Server and registers every route.
func New(cfg Config) *Server {
	s := &Server{
		st:             cfg.State,
		log:            cfg.Log,
		conv:           cfg.Conversion,
		prop:           cfg.Proposal,
		rewards:        cfg.Rewards,
		claimer:        cfg.Claimer,
		principalGuard: guard.NewPrincipalGuard(),
		limiter:        newPrincipalLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		auth:           newJWTAuth(cfg.JWTSigningKey, cfg.SecondaryDAOPrincipal),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/v1/info", s.handleGetInfo)
	r.Get("/v1/status", s.handleGetStatus)
	r.Get("/v1/withdrawals", s.handleGetWithdrawalRequests)
	r.Get("/v1/transfers", s.handleGetTransferStatuses)
	r.Get("/v1/events", s.handleGetEvents)
	r.Get("/v1/airdrop", s.handleGetAirdropAllocation)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Post("/v1/icp_to_nicp", s.handleIcpToNicp)
		r.Post("/v1/nicp_to_icp", s.handleNicpToIcp)
		r.Post("/v1/cancel_withdrawal", s.handleCancelWithdrawal)
		r.Post("/v1/claim_airdrop", s.handleClaimAirdrop)
	})

	r.Post("/v1/icrc21_canister_call_consent_message", s.handleConsentMessage)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.middleware)
		r.Post("/v1/approve_proposal", s.handleApproveProposal)
	})

	s.mux = r
}

// rateLimitMiddleware enforces a per-principal token bucket ahead of
// guard.PrincipalGuard, so a caller hammering retries gets a fast 429
// instead of queueing on the guard.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := r.Header.Get("X-Principal")
		if principal == "" {
			writeError(w, http.StatusBadRequest, "missing X-Principal header")
			return
		}
		if !s.limiter.Allow(principal) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withPrincipalGuard acquires the per-caller guard for the duration of fn.
// A guard.Err* from Acquire is returned unchanged.
func (s *Server) withPrincipalGuard(principal string, fn func(ctx context.Context) (any, error)) (any, error) {
	release, err := s.principalGuard.Acquire(principal)
	if err != nil {
		return nil, err
	}
	defer release()
	return fn(context.Background())
}
