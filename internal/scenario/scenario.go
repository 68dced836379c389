// Package scenario describes offline conversations: a scripted model, the
// operator prompt, and the state the store must end in. Scenarios run
// through the same agent loop, executor and gate as a live session.
package scenario

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aictl/itaccess/internal/provider"
	"github.com/aictl/itaccess/internal/store"
	"github.com/aictl/itaccess/internal/tui"
)

// Scenario is a scripted conversation plus its expected outcome.
type Scenario struct {
	provider.Script `yaml:",inline"`

	// Snapshot optionally replaces the configured initial data.
	Snapshot string `yaml:"snapshot"`

	Expect Expect `yaml:"expect"`
}

// Expect lists the checks applied after the run. Unset fields are skipped.
type Expect struct {
	// Permissions maps a user id to the number of permissions it must hold.
	Permissions map[string]int `yaml:"permissions"`
	// Verifications is the number of verification reads the gate injected.
	Verifications *int `yaml:"verifications"`
	// Errors is the number of tool calls that returned an error.
	Errors *int `yaml:"errors"`
	// Tools is the exact sequence of executed tool names.
	Tools []string `yaml:"tools"`
	// StateHash is the hash of the final snapshot.
	StateHash string `yaml:"state_hash"`
}

// Load reads a scenario from a YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scenario and validates its script.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	// Reuse the script checks on the embedded part.
	if _, err := provider.ParseScript(data); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sc.Prompt) == "" {
		return nil, errors.New("prompt is required")
	}
	return &sc, nil
}

// Outcome is what a run produced.
type Outcome struct {
	Tools    []tui.ToolEvent
	Output   string
	Snapshot *store.Snapshot
}

// Verifications counts the injected verification reads.
func (o *Outcome) Verifications() int {
	n := 0
	for _, t := range o.Tools {
		if strings.HasPrefix(t.ID, "verify_") {
			n++
		}
	}
	return n
}

// Errors counts the tool calls that failed.
func (o *Outcome) Errors() int {
	n := 0
	for _, t := range o.Tools {
		if t.IsError {
			n++
		}
	}
	return n
}

// Check compares the outcome against the expectations and reports every
// mismatch.
func (e Expect) Check(o *Outcome) error {
	var errs []error

	users := make([]string, 0, len(e.Permissions))
	for u := range e.Permissions {
		users = append(users, u)
	}
	sort.Strings(users)
	for _, u := range users {
		got := 0
		for _, p := range o.Snapshot.Permissions {
			if p.UserID == u {
				got++
			}
		}
		if want := e.Permissions[u]; got != want {
			errs = append(errs, fmt.Errorf("permissions of %s: got %d, want %d", u, got, want))
		}
	}

	if e.Verifications != nil && o.Verifications() != *e.Verifications {
		errs = append(errs, fmt.Errorf("verifications: got %d, want %d", o.Verifications(), *e.Verifications))
	}
	if e.Errors != nil && o.Errors() != *e.Errors {
		errs = append(errs, fmt.Errorf("tool errors: got %d, want %d", o.Errors(), *e.Errors))
	}
	if e.Tools != nil {
		got := make([]string, len(o.Tools))
		for i, t := range o.Tools {
			got[i] = t.Name
		}
		if strings.Join(got, ",") != strings.Join(e.Tools, ",") {
			errs = append(errs, fmt.Errorf("tools: got [%s], want [%s]", strings.Join(got, ", "), strings.Join(e.Tools, ", ")))
		}
	}
	if e.StateHash != "" {
		if h := o.Snapshot.Hash(); h != e.StateHash {
			errs = append(errs, fmt.Errorf("state hash: got %s, want %s", h, e.StateHash))
		}
	}
	return errors.Join(errs...)
}
