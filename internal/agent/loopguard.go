package agent

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/aictl/itaccess/internal/provider"
)

type guardAction int

const (
	guardNone guardAction = iota
	guardWarn
	guardStop
)

const (
	repeatWarnThreshold = 3
	repeatStopThreshold = 5
)

// loopGuard tracks consecutive identical tool-call batches from the model.
// A model that keeps retrying the same rejected grant is warned, then
// stopped.
type loopGuard struct {
	lastSig string
	streak  int
}

func (g *loopGuard) check(calls []*provider.ToolCallRequest) guardAction {
	sig := batchSignature(calls)
	if sig == g.lastSig {
		g.streak++
	} else {
		g.lastSig = sig
		g.streak = 1
	}

	switch {
	case g.streak >= repeatStopThreshold:
		return guardStop
	case g.streak >= repeatWarnThreshold:
		return guardWarn
	default:
		return guardNone
	}
}

func (g *loopGuard) reset() {
	g.lastSig = ""
	g.streak = 0
}

// batchSignature hashes the names and decoded arguments of a batch. Call
// ids, argument key order and call order do not affect it.
func batchSignature(calls []*provider.ToolCallRequest) string {
	parts := make([]string, len(calls))
	for i, c := range calls {
		args, _ := json.Marshal(c.Arguments())
		parts[i] = c.Name + ":" + string(args)
	}
	sort.Strings(parts)
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", h)
}
