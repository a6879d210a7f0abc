// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/icbucket/pkg/canister"
	"github.com/LeeDigitalWorks/icbucket/pkg/debug"
	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxCallBody bounds a decoded call body; chunks are 2 MiB by default.
const maxCallBody = 32 << 20

// Server exposes a Replica over HTTP. Requests whose host is
// "<canister-id>.<domain>" fetch assets; all others reach the canister API.
type Server struct {
	replica *Replica
	api     chi.Router
	assets  chi.Router
}

func NewServer(r *Replica) *Server {
	s := &Server{replica: r}

	s.api = chi.NewRouter()
	s.api.Use(middleware.RealIP)
	s.api.Use(requestLogger)
	s.api.Use(middleware.Recoverer)
	s.api.Post("/api/v2/canister/{canisterID}/call/{method}", s.handleCall)
	s.api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.api.Method(http.MethodGet, "/metrics", debug.Handler())
	// assets addressed with ?canisterId= instead of by host
	s.api.Get("/*", s.handleAsset)
	s.api.Head("/*", s.handleAsset)

	s.assets = chi.NewRouter()
	s.assets.Use(middleware.RealIP)
	s.assets.Use(requestLogger)
	s.assets.Use(middleware.Recoverer)
	s.assets.Get("/*", s.handleAsset)
	s.assets.Head("/*", s.handleAsset)

	return s
}

type hostCanisterKey struct{}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/api/") {
		if id, err := types.CanisterFromHost(r.Host); err == nil {
			ctx := context.WithValue(r.Context(), hostCanisterKey{}, id)
			s.assets.ServeHTTP(w, r.WithContext(ctx))
			return
		}
	}
	s.api.ServeHTTP(w, r)
}

// Serve runs the server on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("replica: serving")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")
	start := time.Now()
	defer func() {
		CallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	id, err := types.ParseCanisterID(chi.URLParam(r, "canisterID"))
	if err != nil {
		s.reject(w, method, canister.Reject(canister.CodeInvalidArgument, "%v", err))
		return
	}
	c, err := s.replica.Canister(id)
	if err != nil {
		s.reject(w, method, canister.Reject(canister.CodeNotFound, "%v", err))
		return
	}

	ctx := r.Context()
	body := http.MaxBytesReader(w, r.Body, maxCallBody)

	var resp any
	switch method {
	case canister.MethodList:
		var req canister.ListRequest
		if err = decodeCall(body, &req); err == nil {
			resp, err = c.List(ctx)
		}

	case canister.MethodCreateBatch:
		var req canister.CreateBatchRequest
		if err = decodeCall(body, &req); err == nil {
			var bid types.BatchID
			bid, err = c.CreateBatch(ctx)
			resp = canister.CreateBatchResponse{BatchID: bid}
		}

	case canister.MethodCreateChunk:
		var req canister.CreateChunkRequest
		if err = decodeCall(body, &req); err == nil {
			var cid types.ChunkID
			cid, err = c.CreateChunk(ctx, req.BatchID, req.Content)
			resp = canister.CreateChunkResponse{ChunkID: cid}
		}

	case canister.MethodCommitBatch:
		var req canister.CommitBatchRequest
		if err = decodeCall(body, &req); err == nil {
			err = c.CommitBatch(ctx, req.BatchID, req.Operations)
		}

	case canister.MethodStatus:
		resp, err = c.Status(ctx)

	default:
		err = canister.Reject(canister.CodeNotFound, "unknown method %q", method)
	}

	if err != nil {
		s.reject(w, method, err)
		return
	}

	CallsTotal.WithLabelValues(method, "ok").Inc()
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	out, err := canister.Marshal(resp)
	if err != nil {
		s.reject(w, method, canister.Reject(canister.CodeInternal, "encode response: %v", err))
		return
	}
	w.Header().Set("Content-Type", canister.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func decodeCall(r io.Reader, v any) error {
	if err := canister.Decode(r, v); err != nil {
		return canister.Reject(canister.CodeInvalidArgument, "decode request: %v", err)
	}
	return nil
}

var codeStatus = map[string]int{
	canister.CodeInvalidArgument: http.StatusBadRequest,
	canister.CodeNotFound:        http.StatusNotFound,
	canister.CodeConflict:        http.StatusConflict,
	canister.CodeInternal:        http.StatusInternalServerError,
}

func (s *Server) reject(w http.ResponseWriter, method string, err error) {
	var rerr *canister.RemoteError
	if !errors.As(err, &rerr) {
		rerr = canister.Reject(canister.CodeInternal, "%v", err)
	}
	status, ok := codeStatus[rerr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	CallsTotal.WithLabelValues(method, rerr.Code).Inc()

	logger.Debug().
		Str("method", method).
		Str("code", rerr.Code).
		Str("message", rerr.Message).
		Msg("replica: call rejected")

	out, merr := canister.Marshal(rerr)
	if merr != nil {
		http.Error(w, rerr.Message, status)
		return
	}
	w.Header().Set("Content-Type", canister.ContentType)
	w.WriteHeader(status)
	w.Write(out)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		logger.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("host", r.Host).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Str("request_id", r.Header.Get(canister.RequestIDHeader)).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Msg("replica: request")
	})
}
