package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Version is the MCP server version.
const Version = "0.1.0"

const defaultTopK = 5

// HealthPath is served next to the MCP endpoint for load balancers.
const HealthPath = "/healthz"

const instructions = "Use search to find passages relevant to a question and " +
	"build_context to get them ready for an answer. Scores are cosine " +
	"similarities in [-1, 1]; higher is more relevant."

// Server exposes the retrieval pipeline as MCP tools and resources.
type Server struct {
	ports  *Ports
	server *mcp.Server
}

// NewServer creates a server for ports.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}
	if ports.DefaultTopK <= 0 {
		ports.DefaultTopK = defaultTopK
	}

	s := &Server{
		ports: ports,
		server: mcp.NewServer(
			&mcp.Implementation{Name: "sercha-rag", Version: Version},
			&mcp.ServerOptions{Instructions: instructions},
		),
	}
	s.server.AddReceivingMiddleware(logRequests)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// logRequests logs every request method with its latency at debug level.
func logRequests(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		start := time.Now()
		res, err := next(ctx, method, req)
		if err != nil {
			logger.Debug("mcp %s failed after %s: %v", method, time.Since(start), err)
		} else {
			logger.Debug("mcp %s took %s", method, time.Since(start))
		}
		return res, err
	}
}

// Run serves MCP over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the HTTP handler: streamable MCP at / and a JSON
// health report at HealthPath.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(HealthPath, s.serveHealth)
	mux.Handle("/", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil))
	return mux
}

// serveHealth answers 200 when the pipeline is usable and 503 otherwise.
func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	h := s.ports.Retrieval.Health(r.Context())
	code := http.StatusOK
	if !h.OK() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

// RunHTTP listens on addr and serves Handler until ctx is cancelled.
// Listen errors are returned before anything is served.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	logger.Info("mcp listening on %s", ln.Addr())

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("writing response: %v", err)
	}
}
