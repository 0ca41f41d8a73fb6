package capability

import (
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// decisionTTL bounds how long a cached allow/deny decision is trusted
// before AllowsGlobalScope re-evaluates the policy. Global scope is
// consulted on every retrieve/retrieve_context call at the broadest scope
// level, so a bounded, short-lived cache keeps repeated lookups for the
// same caller from re-running the Rego evaluator on every call, without
// ever caching indefinitely (spec.md §1 Non-goals rule out unbounded
// caches, not bounded ones).
const decisionTTL = 30 * time.Second

// decisionCache is a small bounded (not unbounded) memo of recent
// AllowsGlobalScope results, keyed by the required capability plus the
// caller's capability set.
type decisionCache struct {
	cache *ristretto.Cache[string, bool]
}

func newDecisionCache() (*decisionCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, bool]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &decisionCache{cache: c}, nil
}

func decisionKey(requiredCapability string, caller Context) string {
	caps := append([]string(nil), caller.Capabilities...)
	sort.Strings(caps)
	return requiredCapability + "|" + strings.Join(caps, ",")
}

func (c *decisionCache) get(requiredCapability string, caller Context) (bool, bool) {
	if c == nil || c.cache == nil {
		return false, false
	}
	return c.cache.Get(decisionKey(requiredCapability, caller))
}

func (c *decisionCache) set(requiredCapability string, caller Context, allowed bool) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.SetWithTTL(decisionKey(requiredCapability, caller), allowed, 1, decisionTTL)
}

func (c *decisionCache) close() {
	if c != nil && c.cache != nil {
		c.cache.Close()
	}
}
