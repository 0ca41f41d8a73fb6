// Package capability answers a single narrow question — does a caller's
// capability set authorize operating in global scope? — via a Rego policy,
// grounded on the teacher's episodic authz policy engine but reduced to
// the one decision spec.md §4.5/§7 names (scope authorization is a
// capability check, not a full access-control system).
package capability

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/open-policy-agent/opa/rego"
)

// Context carries the caller identity the policy decides on.
type Context struct {
	UserID       string
	Capabilities []string
}

// defaultPolicy allows global scope to any caller whose capability set
// contains the configured capability string.
const defaultPolicy = `
package memoric.capability

import future.keywords.if
import future.keywords.in

default allow_global = false

allow_global if {
	input.required_capability in input.context.capabilities
}
`

// Checker evaluates the global-scope authorization policy.
type Checker struct {
	mu    sync.RWMutex
	q     *rego.PreparedEvalQuery
	src   string
	cache *decisionCache
}

// NewChecker builds a Checker. If policyPath is empty, the built-in
// default policy is used.
func NewChecker(ctx context.Context, policyPath string) (*Checker, error) {
	cache, err := newDecisionCache()
	if err != nil {
		return nil, fmt.Errorf("capability: build decision cache: %w", err)
	}
	c := &Checker{cache: cache}
	if err := c.load(ctx, policyPath); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases the Checker's bounded decision cache.
func (c *Checker) Close() {
	c.cache.close()
}

func (c *Checker) load(ctx context.Context, policyPath string) error {
	src := defaultPolicy
	if policyPath != "" {
		data, err := os.ReadFile(policyPath)
		if err != nil {
			log.Warn("capability: policy file not found, using built-in default", "path", policyPath, "err", err)
		} else {
			src = string(data)
		}
	}
	q, err := prepareQuery(ctx, src)
	if err != nil {
		return fmt.Errorf("capability: compile policy: %w", err)
	}
	c.mu.Lock()
	c.q, c.src = q, src
	c.mu.Unlock()
	return nil
}

func prepareQuery(ctx context.Context, src string) (*rego.PreparedEvalQuery, error) {
	r := rego.New(
		rego.Query("data.memoric.capability.allow_global"),
		rego.Module("capability.rego", src),
	)
	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &pq, nil
}

// AllowsGlobalScope evaluates the policy for the given caller context and
// required capability string, short-circuiting on a recent cached
// decision for the same (requiredCapability, capability set) pair.
func (c *Checker) AllowsGlobalScope(ctx context.Context, requiredCapability string, caller Context) (bool, error) {
	if allowed, hit := c.cache.get(requiredCapability, caller); hit {
		return allowed, nil
	}

	c.mu.RLock()
	q := *c.q
	c.mu.RUnlock()

	input := map[string]any{
		"required_capability": requiredCapability,
		"context": map[string]any{
			"user_id":      caller.UserID,
			"capabilities": caller.Capabilities,
		},
	}
	results, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("capability: eval: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		c.cache.set(requiredCapability, caller, false)
		return false, nil
	}
	allow, _ := results[0].Expressions[0].Value.(bool)
	c.cache.set(requiredCapability, caller, allow)
	return allow, nil
}
