// Package mcpserver exposes a ledger to MCP clients over stdio. The tools it
// registers are the only mutation surface besides the CLI.
package mcpserver

import (
	"context"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roach88/litledger/internal/ledger"
)

// Server wraps one ledger.
type Server struct {
	ledger *ledger.Ledger
	logger *slog.Logger
	mcp    *sdk.Server
}

// New builds a server for l.
func New(l *ledger.Ledger, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ledger: l,
		logger: logger,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "litledger",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

// Run serves until the transport closes or ctx is cancelled.
func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}

// RunStdio serves on stdin/stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &sdk.StdioTransport{})
}
