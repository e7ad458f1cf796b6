package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"AuctionLedger/internal/auction"
	"AuctionLedger/internal/observability"
	"AuctionLedger/internal/query"
)

const defaultListLimit = 50
const maxListLimit = 500

// HTTPServer serves the HTTP/JSON query API plus liveness and
// readiness probes.
type HTTPServer struct {
	httpServer    *http.Server
	qs            *query.QueryService
	healthChecker *observability.HealthChecker
	metrics       *observability.Metrics
	log           zerolog.Logger
}

func NewHTTPServer(
	addr string,
	qs *query.QueryService,
	healthChecker *observability.HealthChecker,
	metrics *observability.Metrics,
) *HTTPServer {
	s := &HTTPServer{
		qs:            qs,
		healthChecker: healthChecker,
		metrics:       metrics,
		log:           observability.NewLogger("server.http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auction", s.handleGetAuction)
	mux.HandleFunc("/v1/claims", s.handleListClaims)
	mux.HandleFunc("/v1/claims/", s.handleGetClaim)
	mux.HandleFunc("/v1/invocations", s.handleListInvocations)
	mux.HandleFunc("/v1/integrity", s.handleVerifyIntegrity)
	mux.HandleFunc("/healthz", healthChecker.LivenessHandler)
	mux.HandleFunc("/readyz", healthChecker.ReadinessHandler)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves HTTP until ctx is cancelled (blocking).
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "get_auction", func(ctx context.Context) (interface{}, error) {
		resp, err := s.qs.GetAuction(ctx)
		if err != nil {
			return nil, err
		}
		if resp == nil {
			return nil, errNotFound("auction not initialized")
		}
		return resp, nil
	})
}

func (s *HTTPServer) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/v1/claims/")
	identity, err := auction.ParseIdentity(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid identity: "+raw)
		return
	}
	s.serve(w, r, "get_claim", func(ctx context.Context) (interface{}, error) {
		return s.qs.GetClaim(ctx, identity)
	})
}

func (s *HTTPServer) handleListClaims(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	s.serve(w, r, "list_claims", func(ctx context.Context) (interface{}, error) {
		claims, err := s.qs.ListClaims(ctx, limit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"claims": claims}, nil
	})
}

func (s *HTTPServer) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	var before *int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		before = &v
	}
	s.serve(w, r, "list_invocations", func(ctx context.Context) (interface{}, error) {
		invs, err := s.qs.ListInvocations(ctx, limit, before)
		if err != nil {
			return nil, err
		}
		resp := map[string]interface{}{"invocations": invs}
		if len(invs) == limit {
			resp["next_before"] = invs[len(invs)-1].Sequence
		}
		return resp, nil
	})
}

func (s *HTTPServer) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	s.serve(w, r, "verify_integrity", func(ctx context.Context) (interface{}, error) {
		return s.qs.VerifyIntegrity(ctx)
	})
}

// serve runs one query handler with a request timeout, metrics and
// uniform JSON encoding.
func (s *HTTPServer) serve(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	fn func(ctx context.Context) (interface{}, error),
) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	s.metrics.QueryRequests.WithLabelValues(name).Inc()
	resp, err := fn(ctx)
	s.metrics.QueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		if nf, ok := err.(notFoundError); ok {
			writeError(w, http.StatusNotFound, string(nf))
			return
		}
		s.metrics.QueryErrors.WithLabelValues(name).Inc()
		s.log.Error().Err(err).Str("query", name).Msg("query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

func errNotFound(msg string) error { return notFoundError(msg) }

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxListLimit {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return 0, false
		}
		limit = v
	}
	return limit, true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
