package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// ScriptTurn is one canned model reply.
type ScriptTurn struct {
	Text      string       `yaml:"text"`
	ToolCalls []ScriptCall `yaml:"tool_calls"`
}

// ScriptCall is a tool call issued by a scripted turn. ID is optional.
type ScriptCall struct {
	ID    string         `yaml:"id"`
	Name  string         `yaml:"name"`
	Input map[string]any `yaml:"input"`
}

// Script is an offline conversation: the user prompt plus the replies the
// model will give, in order.
type Script struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Prompt      string       `yaml:"prompt"`
	Turns       []ScriptTurn `yaml:"turns"`
}

// LoadScript reads a YAML script from path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(s.Turns) == 0 {
		return nil, fmt.Errorf("script %q has no turns", s.Name)
	}
	for i, t := range s.Turns {
		for j, c := range t.ToolCalls {
			if c.Name == "" {
				return nil, fmt.Errorf("script %q: turn %d call %d has no name", s.Name, i+1, j+1)
			}
		}
	}
	return &s, nil
}

// ScriptedProvider replays canned turns instead of calling a model. It
// records every request so tests can inspect what the model was shown.
type ScriptedProvider struct {
	mu       sync.Mutex
	turns    []ScriptTurn
	next     int
	calls    int
	requests []ChatRequest
}

func NewScriptedProvider(turns ...ScriptTurn) *ScriptedProvider {
	return &ScriptedProvider{turns: turns}
}

func (p *ScriptedProvider) Name() string         { return "scripted" }
func (p *ScriptedProvider) DefaultModel() string { return "scripted" }

func (p *ScriptedProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := *req
	snapshot.Messages = append([]Message(nil), req.Messages...)
	p.requests = append(p.requests, snapshot)

	if p.next >= len(p.turns) {
		return nil, fmt.Errorf("scripted provider: no turn left after %d replies", len(p.turns))
	}
	turn := p.turns[p.next]
	p.next++

	calls := make([]*ToolCallRequest, 0, len(turn.ToolCalls))
	for _, c := range turn.ToolCalls {
		p.calls++
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("call_%03d", p.calls)
		}
		input := c.Input
		if input == nil {
			input = map[string]any{}
		}
		raw, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("scripted provider: encode %s input: %w", c.Name, err)
		}
		calls = append(calls, &ToolCallRequest{ID: id, Name: c.Name, Input: raw})
	}
	return replay(turn.Text, calls, Usage{}), nil
}

// Requests returns the requests received so far.
func (p *ScriptedProvider) Requests() []ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ChatRequest(nil), p.requests...)
}

// Remaining reports how many scripted turns have not been consumed.
func (p *ScriptedProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.turns) - p.next
}
