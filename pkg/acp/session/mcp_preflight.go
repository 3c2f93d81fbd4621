package session

import (
	"context"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/brindlewood/acpcore/pkg/acp/acperr"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

// PreflightMCPServers probes every HTTP/SSE MCP server descriptor in
// servers before it is handed to session/new, so a misconfigured MCP
// endpoint fails fast with a clear client-side error instead of a silent
// agent-side failure later. Only descriptors with Type "http" or "sse"
// are probed; stdio (Command-based) servers are the agent's own
// responsibility to launch and are skipped. An http or sse descriptor the
// agent does not advertise in mcpCapabilities.{http,sse} fails with
// KindCapabilityNotSupported. Manager.CreateSession runs this whenever it
// is given MCP servers.
//
// Grounded on internal/mcpserver/server.go's dual SSE/Streamable-HTTP
// transport split.
func PreflightMCPServers(ctx context.Context, caps wire.MCPCapabilities, servers []wire.McpServer) error {
	for _, s := range servers {
		switch s.Type {
		case "http":
			if !caps.HTTP {
				return acperr.Newf(acperr.KindCapabilityNotSupported, "agent does not support HTTP MCP servers (server %q)", s.Name)
			}
			if err := probeStreamableHTTP(ctx, s); err != nil {
				return acperr.Wrap(acperr.KindInternal, fmt.Sprintf("mcp server %q preflight failed", s.Name), err)
			}
		case "sse":
			if !caps.SSE {
				return acperr.Newf(acperr.KindCapabilityNotSupported, "agent does not support SSE MCP servers (server %q)", s.Name)
			}
			if err := probeSSE(ctx, s); err != nil {
				return acperr.Wrap(acperr.KindInternal, fmt.Sprintf("mcp server %q preflight failed", s.Name), err)
			}
		}
	}
	return nil
}

func probeStreamableHTTP(ctx context.Context, s wire.McpServer) error {
	c, err := mcpclient.NewStreamableHttpClient(s.URL)
	if err != nil {
		return fmt.Errorf("construct streamable-http client: %w", err)
	}
	defer c.Close()
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start streamable-http transport: %w", err)
	}
	return initializeAndPing(ctx, c)
}

func probeSSE(ctx context.Context, s wire.McpServer) error {
	c, err := mcpclient.NewSSEMCPClient(s.URL)
	if err != nil {
		return fmt.Errorf("construct sse client: %w", err)
	}
	defer c.Close()
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start sse transport: %w", err)
	}
	return initializeAndPing(ctx, c)
}

func initializeAndPing(ctx context.Context, c *mcpclient.Client) error {
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "acpcore", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	return c.Ping(ctx)
}
