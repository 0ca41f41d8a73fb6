package config

import (
	"context"
	"os"
	"strings"
	"time"
)

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// TierConfig configures one lifecycle tier (short_term, mid_term, long_term).
type TierConfig struct {
	Name string

	// ExpiryDays is the tier's retention age in days. Zero means "never
	// expire" (spec.md §9). No policy phase reads it: records are neither
	// deleted nor trimmed because of their age.
	ExpiryDays int

	// Capacity caps the number of records retained per (user, tier); the
	// trim phase evicts the lowest-scoring excess. Zero means unbounded.
	Capacity int

	TrimMaxChars int

	SummarizeMinChars    int
	SummarizeTargetChars int
}

// MigratePolicy is one entry of the forward-only tier migration schedule
// (spec.md §4.6): records in From older than WhenAgeDays move to To.
type MigratePolicy struct {
	From        string
	To          string
	WhenAgeDays int
}

// ThreadSummarizationConfig tunes the thread-summarize phase.
type ThreadSummarizationConfig struct {
	Enabled         bool
	MinRecords      int
	MaxChars        int
	IncludeMetadata bool
}

// ClusteringConfig tunes the cluster-rebuild phase.
type ClusteringConfig struct {
	Enabled        bool
	MinClusterSize int
	// Strategy names the grouping key; "topic_category" is the only
	// built-in strategy.
	Strategy string
}

// RetrievalConfig tunes default retrieve/retrieve_context behavior.
type RetrievalConfig struct {
	// Scope is the default resolution order: thread|topic|user|global.
	Scope               string
	DefaultTopK         int
	CandidateMultiplier int
	CandidateFloor      int
	IncludeSummarized   bool
}

// ScoringConfig mirrors scoring.Config's tunables for config-driven wiring.
type ScoringConfig struct {
	ImportanceWeight     float64
	RecencyWeight        float64
	RepetitionWeight     float64
	HalfLife             time.Duration
	RepetitionSaturation float64
}

// TextProcessorConfig selects and parameterizes a trimmer or summarizer.
type TextProcessorConfig struct {
	// Type is "noop", "truncating", or "external".
	Type string

	// AnthropicAPIKey and AnthropicModel configure the "external" summarizer
	// backend; with no API key, an "external" summarizer falls back to noop.
	// The trimmer has no external backend and ignores these fields.
	AnthropicAPIKey string
	AnthropicModel  string
	MaxRetries      int
}

// EnrichmentConfig toggles metadata enrichment on save.
type EnrichmentConfig struct {
	Enabled bool
}

// EncryptionConfig selects and parameterizes the content-at-rest encryption
// provider records are passed through on save/retrieve.
type EncryptionConfig struct {
	// Provider is the registered encrypt.Provider name: "plain" (default,
	// no-op), "kms", or "vault". Empty is treated as "plain".
	Provider string

	// KMSKeyID is the AWS KMS key ID or ARN the "kms" provider wraps its
	// data key with.
	KMSKeyID string

	// VaultTransitKey is the Transit secrets engine key name the "vault"
	// provider encrypts/decrypts through.
	VaultTransitKey string
}

// PrivacyConfig tunes scope authorization (spec.md §4.5, §7).
type PrivacyConfig struct {
	// EnforceUserScope requires every operation to carry a user_id except
	// where global scope has been explicitly authorized.
	EnforceUserScope bool
	// GlobalScopeCapability is the capability string a caller's capability
	// set must include to retrieve global-scope memories.
	GlobalScopeCapability string
}

// Config holds all configuration for the Memoric core engine.
type Config struct {
	// Mode controls ambient behavior the same way the wider service's
	// Mode does: "prod" (default) or "testing".
	Mode string

	// Storage dialect: "postgres" or "sqlite", selecting the registered
	// store plugin.
	DatastoreType string
	DBURL         string

	DatastoreMigrateAtStart bool

	DBMaxOpenConns int
	DBMaxIdleConns int

	Tiers           []TierConfig
	MigratePolicies []MigratePolicy

	ThreadSummarization ThreadSummarizationConfig
	Clustering          ClusteringConfig
	Retrieval           RetrievalConfig
	Scoring             ScoringConfig

	Trimmer    TextProcessorConfig
	Summarizer TextProcessorConfig

	Enrichment EnrichmentConfig
	Privacy    PrivacyConfig
	Encryption EncryptionConfig

	// RedisURL, when set, backs the per-user advisory lock the Policy
	// Executor takes around run_policies (spec.md §5, §9). Empty falls
	// back to a process-local lock, which only guards a single instance.
	RedisURL string

	// PolicyBatchSize bounds how many users a single run_policies
	// invocation processes (spec.md §4.6 backpressure).
	PolicyBatchSize int
	// PolicyChunkSize bounds how many records are mutated per transaction
	// within a single phase.
	PolicyChunkSize int

	// Temporary file directory. Empty uses the platform default.
	TempDir string
}

// DefaultConfig returns a Config with the defaults spec.md documents.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeProd,
		DatastoreType:           "sqlite",
		DatastoreMigrateAtStart: true,
		DBMaxOpenConns:          15,
		DBMaxIdleConns:          5,
		Tiers: []TierConfig{
			{Name: "short_term", TrimMaxChars: 2000, SummarizeMinChars: 4000, SummarizeTargetChars: 500},
			{Name: "mid_term", ExpiryDays: 90, TrimMaxChars: 1000, SummarizeMinChars: 2000, SummarizeTargetChars: 300},
			{Name: "long_term", TrimMaxChars: 500},
		},
		MigratePolicies: []MigratePolicy{
			{From: "short_term", To: "mid_term", WhenAgeDays: 7},
			{From: "mid_term", To: "long_term", WhenAgeDays: 30},
		},
		ThreadSummarization: ThreadSummarizationConfig{
			Enabled:    true,
			MinRecords: 3,
			MaxChars:   4000,
		},
		Clustering: ClusteringConfig{
			Enabled:        true,
			MinClusterSize: 3,
			Strategy:       "topic_category",
		},
		Retrieval: RetrievalConfig{
			Scope:               "thread",
			DefaultTopK:         10,
			CandidateMultiplier: 4,
			CandidateFloor:      50,
		},
		Scoring: ScoringConfig{
			ImportanceWeight:     0.6,
			RecencyWeight:        0.3,
			RepetitionWeight:     0.1,
			HalfLife:             14 * 24 * time.Hour,
			RepetitionSaturation: 5,
		},
		Trimmer:    TextProcessorConfig{Type: "noop"},
		Summarizer: TextProcessorConfig{Type: "noop", AnthropicModel: "claude-haiku-4-5", MaxRetries: 3},
		Enrichment: EnrichmentConfig{Enabled: true},
		Privacy: PrivacyConfig{
			EnforceUserScope:      true,
			GlobalScopeCapability: "memoric:global",
		},
		Encryption: EncryptionConfig{Provider: "plain"},
		PolicyBatchSize: 50,
		PolicyChunkSize: 200,
	}
}

// ResolvedTempDir returns the configured temp directory or the platform
// default.
func (c *Config) ResolvedTempDir() string {
	if c == nil {
		return os.TempDir()
	}
	if dir := strings.TrimSpace(c.TempDir); dir != "" {
		return dir
	}
	return os.TempDir()
}

// TierByName looks up a configured tier by name.
func (c *Config) TierByName(name string) (TierConfig, bool) {
	for _, t := range c.Tiers {
		if t.Name == name {
			return t, true
		}
	}
	return TierConfig{}, false
}
