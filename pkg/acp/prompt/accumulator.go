// Package prompt implements the Update Router + Accumulators (spec.md
// §4.8) and the Prompt Handler (spec.md §4.7). Grounded on
// internal/agentctl/types/streams/agent.go's discriminated AgentEvent
// shape for the update kinds, and
// internal/agentctl/server/adapter/transport/acp/adapter.go's prompt-turn
// orchestration for Handler.SendPrompt/CancelPrompt.
package prompt

import (
	"strings"
	"sync"

	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

// Accumulator is the MessageAccumulator of spec.md §3.4: an ordered
// sequence of ContentBlocks for one turn, supporting append, full-text
// concatenation (text blocks only, no separator), length, and reset.
type Accumulator struct {
	mu     sync.Mutex
	blocks []wire.ContentBlock
}

// Append adds a block to the accumulator in arrival order.
func (a *Accumulator) Append(block wire.ContentBlock) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocks = append(a.blocks, block)
}

// GetFullText concatenates block.Text for every text-kind block in
// insertion order, with no separators (spec.md §3.4, §8.1).
func (a *Accumulator) GetFullText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var sb strings.Builder
	for _, b := range a.blocks {
		if b.Type == wire.ContentText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// Blocks returns a snapshot of every block appended so far, in order.
func (a *Accumulator) Blocks() []wire.ContentBlock {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]wire.ContentBlock, len(a.blocks))
	copy(out, a.blocks)
	return out
}

// Len returns the number of blocks appended.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.blocks)
}

// Reset clears the accumulator for a new turn.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocks = nil
}
