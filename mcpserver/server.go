// Package mcpserver exposes a ledger service to agents over the Model Context
// Protocol.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/robinvdvleuten/beancount-mcp/service"
)

const serverName = "beancount-mcp"

// Server serves one ledger service over MCP.
type Server struct {
	mcpServer *mcp.Server
	svc       *service.Service
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithClock sets the clock behind beancount_current_date.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// New registers the ledger tools and resources on a new MCP server.
func New(svc *service.Service, version string, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, &mcp.ServerOptions{
		Instructions: "Query and extend a beancount ledger. Run beancount_accounts before submitting " +
			"a transaction and beancount_current_date when the user speaks of relative dates.",
	})

	mcp.AddTool(s.mcpServer, QueryTool(), QueryHandler(svc, s.logger))
	mcp.AddTool(s.mcpServer, GetTransactionTool(), GetTransactionHandler(svc))
	mcp.AddTool(s.mcpServer, AccountsTool(), AccountsHandler(svc))
	mcp.AddTool(s.mcpServer, SubmitTransactionTool(), SubmitTransactionHandler(svc, s.logger))
	mcp.AddTool(s.mcpServer, CurrentDateTool(), CurrentDateHandler(s.now))

	s.mcpServer.AddResource(AccountsResource(), AccountsResourceHandler(svc))
	s.mcpServer.AddResource(FilesResource(), FilesResourceHandler(svc))
	return s
}

// Serve runs the server on stdio until the client disconnects or ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server started", zap.String("ledger", s.svc.Filename()))
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	s.logger.Info("mcp server stopped")
	return nil
}

// toolError prefixes err with its kind, such as "balance error: ...".
func toolError(err error) error {
	return fmt.Errorf("%s error: %w", service.ErrorKind(err), err)
}
