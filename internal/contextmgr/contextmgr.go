// Package contextmgr bounds conversational context with approximate token
// accounting and suffix-preserving compaction.
package contextmgr

// MessageRole identifies who produced a message.
type MessageRole string

const (
	// RoleSystem is the leading instruction message.
	RoleSystem MessageRole = "system"
	// RoleUser is a human or hand-off message.
	RoleUser MessageRole = "user"
	// RoleAssistant is a model response.
	RoleAssistant MessageRole = "assistant"
	// RoleTool is a tool result message.
	RoleTool MessageRole = "tool"
)

// Message is one entry in a conversational buffer.
type Message struct {
	// Role identifies the message producer.
	Role MessageRole
	// Content is the message text.
	Content string
	// Name optionally attributes the message to a component.
	Name string
	// HasToolCall marks messages carrying tool-call payloads.
	HasToolCall bool
	// HasReasoning marks messages carrying model reasoning content.
	HasReasoning bool
}

// messageOverhead is the fixed per-message token cost for role and
// structural framing.
const messageOverhead = 4

// toolCallOverhead approximates the cost of tool-call metadata.
const toolCallOverhead = 50

// Manager estimates token usage and compacts message lists to a budget.
type Manager struct {
	tokenLimit int
}

// New creates a Manager with the given token limit.
func New(tokenLimit int) *Manager {
	return &Manager{tokenLimit: tokenLimit}
}

// Limit returns the configured token limit.
func (m *Manager) Limit() int {
	return m.tokenLimit
}

// CountTokens estimates the token cost of a message list. The estimator
// is language neutral, not model exact: Basic-Latin characters cost a
// quarter token each, every other character costs a full token.
func (m *Manager) CountTokens(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += m.countMessage(msg)
	}
	return total
}

// countMessage estimates one message. Tool and reasoning payloads pack
// denser than plain prose, so they carry a small multiplier.
func (m *Manager) countMessage(msg Message) int {
	count := countText(msg.Content) + countText(string(msg.Role)) + messageOverhead
	if msg.Name != "" {
		count += countText(msg.Name)
	}

	switch {
	case msg.HasToolCall:
		count = int(float64(count) * 1.3)
		count += toolCallOverhead
	case msg.HasReasoning:
		count = int(float64(count) * 1.2)
	case msg.Role == RoleSystem:
		count = int(float64(count) * 1.1)
	}

	if count < 1 {
		count = 1
	}
	return count
}

// countText estimates tokens for raw text. ASCII runs roughly four
// characters per token; ideographic and other non-ASCII scripts run
// closer to one character per token.
func countText(text string) int {
	ascii, other := 0, 0
	for _, r := range text {
		if r < 128 {
			ascii++
		} else {
			other++
		}
	}
	return ascii/4 + other
}

// IsOverLimit reports whether the messages exceed the token limit.
func (m *Manager) IsOverLimit(messages []Message) bool {
	return m.CountTokens(messages) > m.tokenLimit
}

// Compress fits messages under the manager's token limit. Under budget
// the input is returned unchanged, so Compress is idempotent. Over
// budget, a leading system message is always preserved in full and its
// cost subtracted from the budget; the rest are walked newest to oldest
// and kept while they fit, so the output is the preserved instruction
// plus a contiguous suffix of the remainder. No message is truncated.
//
// Degenerate case: if the instruction alone exceeds the limit, the input
// is returned as-is and the caller must handle it.
func (m *Manager) Compress(messages []Message) []Message {
	if !m.IsOverLimit(messages) {
		return messages
	}

	available := m.tokenLimit
	var instruction *Message
	rest := messages
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		instruction = &messages[0]
		rest = messages[1:]
		available -= m.countMessage(*instruction)
		if available < 0 {
			return messages
		}
	}

	// Keep the newest messages that still fit; stop at the first
	// overflow so the result stays a contiguous suffix.
	kept := 0
	for i := len(rest) - 1; i >= 0; i-- {
		cost := m.countMessage(rest[i])
		if cost > available {
			break
		}
		available -= cost
		kept++
	}

	suffix := rest[len(rest)-kept:]
	if instruction == nil {
		return append([]Message(nil), suffix...)
	}

	out := make([]Message, 0, kept+1)
	out = append(out, *instruction)
	out = append(out, suffix...)
	return out
}
