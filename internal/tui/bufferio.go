package tui

import (
	"io"
	"strings"
	"sync"

	"github.com/aictl/itaccess/internal/tools"
)

// ToolEvent records one completed tool call seen by BufferIO.
type ToolEvent struct {
	ID      string
	Name    string
	Params  string
	Result  string
	IsError bool
}

// BufferIO is a silent IO that replays queued input lines and captures
// everything the agent emits. Used by tests and scripted scenario runs.
type BufferIO struct {
	mu       sync.Mutex
	inputs   []string
	buf      strings.Builder
	pending  map[string]string
	tools    []ToolEvent
	system   []string
	errors   []string
	confirms []string
	approve  bool
	tokens   int
}

var _ IO = (*BufferIO)(nil)

// NewBufferIO creates a BufferIO that returns inputs in order, then io.EOF.
// Confirmation requests are approved.
func NewBufferIO(inputs ...string) *BufferIO {
	return &BufferIO{inputs: inputs, pending: map[string]string{}, approve: true}
}

// SetApprove sets the answer given to confirmation requests.
func (b *BufferIO) SetApprove(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.approve = v
}

// Output returns all captured model text.
func (b *BufferIO) Output() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Tools returns the completed tool calls in order.
func (b *BufferIO) Tools() []ToolEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ToolEvent(nil), b.tools...)
}

// SystemMessages returns the system messages in order.
func (b *BufferIO) SystemMessages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.system...)
}

// Errors returns the reported errors in order.
func (b *BufferIO) Errors() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.errors...)
}

// Confirmations returns the tool names confirmation was requested for.
func (b *BufferIO) Confirmations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.confirms...)
}

// Tokens returns the last token count reported.
func (b *BufferIO) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

func (b *BufferIO) ReadInput() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inputs) == 0 {
		return "", io.EOF
	}
	line := b.inputs[0]
	b.inputs = b.inputs[1:]
	return line, nil
}

func (b *BufferIO) UserMessage(_ string) {}
func (b *BufferIO) ThinkingStart()       {}

func (b *BufferIO) TextDelta(delta string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.WriteString(delta)
}

func (b *BufferIO) TextDone(_ string) {}

func (b *BufferIO) ToolStart(id, _, params string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[id] = params
}

func (b *BufferIO) ToolDone(id, name, result string, isError bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tools = append(b.tools, ToolEvent{ID: id, Name: name, Params: b.pending[id], Result: result, IsError: isError})
	delete(b.pending, id)
}

func (b *BufferIO) Confirm(name, _ string, _ tools.Kind) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirms = append(b.confirms, name)
	return b.approve
}

func (b *BufferIO) SystemMessage(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.system = append(b.system, text)
}

func (b *BufferIO) Error(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, msg)
}

func (b *BufferIO) SetTokens(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = n
}
