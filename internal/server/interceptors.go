package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const healthMethodPrefix = "/grpc.health.v1.Health/"

// unaryLogging logs every unary RPC with its status code. Successful health
// probes go to debug so orchestrator polling stays quiet.
func (s *Server) unaryLogging(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	attrs := []any{
		"method", info.FullMethod,
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	}
	switch {
	case err != nil:
		s.logger.Warn("server: rpc failed", append(attrs, "error", err)...)
	case strings.HasPrefix(info.FullMethod, healthMethodPrefix):
		s.logger.Debug("server: rpc", attrs...)
	default:
		s.logger.Info("server: rpc", attrs...)
	}
	return resp, err
}

// unaryRecovery turns a handler panic into codes.Internal.
func (s *Server) unaryRecovery(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("server: rpc panic",
				"method", info.FullMethod,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			err = status.Error(codes.Internal, "internal server error")
		}
	}()
	return handler(ctx, req)
}

// authExempt lists the GET paths reachable without a token: probes and
// Prometheus scrapes.
var authExempt = map[string]bool{
	"/v1/health": true,
	"/metrics":   true,
}

// AuthMiddleware requires "Authorization: Bearer <token>" on every request
// except the exempt GET paths. An empty token disables the check.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	want := []byte(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && authExempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		got, problem := bearerToken(r.Header.Get("Authorization"))
		if problem == "" && subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			problem = "invalid token"
		}
		if problem != "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="o3gate"`)
			writeError(w, http.StatusUnauthorized, problem)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the token from an Authorization header value. The
// second result is a client-facing reason when the header is unusable.
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, tok, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization scheme"
	}
	return strings.TrimSpace(tok), ""
}

// accessLog logs each HTTP request once it completes. Client errors log at
// warn, server errors at error, everything else at debug.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Log(r.Context(), logLevelFor(rec.code), "server: http",
			"method", r.Method,
			"path", r.URL.Path,
			"code", rec.code,
			"duration", time.Since(start),
		)
	})
}

// statusRecorder captures the response code. It forwards Flush so the event
// stream keeps working behind it.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func logLevelFor(code int) slog.Level {
	switch {
	case code >= 500:
		return slog.LevelError
	case code >= 400:
		return slog.LevelWarn
	}
	return slog.LevelDebug
}
