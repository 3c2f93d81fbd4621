package session

import (
	"context"

	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

// ForkOrReplay is the context-injection fork fallback described in
// SPEC_FULL.md §4: for agents that support neither session/resume nor
// session/fork, it re-creates a session with session/new and prepends a
// context-summary text block to the first prompt, so callers get
// continuity without a true protocol-level fork. It is a client-side
// convenience, never a new wire method, and is only used when the
// corresponding AgentCapabilities flag is absent. Grounded on
// internal/agentctl/server/adapter/transport/acp/adapter.go's fallback
// for agents lacking native session continuation.
func (m *Manager) ForkOrReplay(ctx context.Context, previous *Session, contextSummary string, mcpServers []wire.McpServer) (*Session, []wire.ContentBlock, error) {
	if m.conn.CanForkSession() {
		s, err := m.ForkSession(ctx, previous.SessionID, previous.Cwd)
		return s, nil, err
	}
	if m.conn.CanResumeSession() {
		s, err := m.ResumeSession(ctx, previous.SessionID)
		return s, nil, err
	}

	s, err := m.CreateSession(ctx, previous.Cwd, mcpServers)
	if err != nil {
		return nil, nil, err
	}

	var prefix []wire.ContentBlock
	if contextSummary != "" {
		prefix = []wire.ContentBlock{{Type: wire.ContentText, Text: contextSummary}}
	}
	return s, prefix, nil
}
