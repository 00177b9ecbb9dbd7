package mcp

import (
	"context"

	"github.com/viant/jsonrpc/transport"
	protoclient "github.com/viant/mcp-protocol/client"
	"github.com/viant/mcp-protocol/logger"
	protoserver "github.com/viant/mcp-protocol/server"
)

// Handler is one MCP session: the default protocol plumbing plus the Outlook
// node tools. It keeps the client operations around so tool calls can raise
// the out-of-band sign-in elicitation.
type Handler struct {
	*protoserver.DefaultHandler
	service *Service
	ops     protoclient.Operations
}

// NewHandler returns the per-session factory the MCP server invokes; every
// session gets the node tools registered against a fresh default handler.
func NewHandler(service *Service) protoserver.NewHandler {
	return func(_ context.Context, notifier transport.Notifier, logger logger.Logger, ops protoclient.Operations) (protoserver.Handler, error) {
		base := protoserver.NewDefaultHandler(notifier, logger, ops)
		h := &Handler{DefaultHandler: base, service: service, ops: ops}
		if err := registerTools(base, h); err != nil {
			return nil, err
		}
		return h, nil
	}
}
