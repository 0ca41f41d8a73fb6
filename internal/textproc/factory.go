package textproc

import "github.com/charmbracelet/log"

// Kind is the recognized text_processing.{trimmer,summarizer}.type value.
type Kind string

const (
	KindNoop       Kind = "noop"
	KindTruncating Kind = "truncating"
	KindExternal   Kind = "external"
)

// TrimmerConfig mirrors the text_processing.trimmer configuration block.
type TrimmerConfig struct {
	Type Kind
}

// SummarizerConfig mirrors the text_processing.summarizer configuration
// block. Model is only consulted when Type is "external".
type SummarizerConfig struct {
	Type       Kind
	Model      Model
	MaxRetries uint64
}

// NewTrimmer is the Trimmer factory. An unrecognized type returns the
// built-in noop default, logging a warning, per spec.md §9.
func NewTrimmer(cfg TrimmerConfig) Trimmer {
	switch cfg.Type {
	case KindTruncating:
		return Truncating{}
	case KindNoop, "":
		return Noop{}
	default:
		log.Warn("textproc: unknown trimmer type, falling back to noop", "type", cfg.Type)
		return Noop{}
	}
}

// NewSummarizer is the Summarizer factory. An unrecognized type, or
// "external" with no Model configured, returns the built-in noop default,
// logging a warning.
func NewSummarizer(cfg SummarizerConfig) Summarizer {
	switch cfg.Type {
	case KindTruncating:
		return Truncating{}
	case KindExternal:
		if cfg.Model == nil {
			log.Warn("textproc: external summarizer configured with no model, falling back to noop")
			return Noop{}
		}
		return NewExternal(cfg.Model, cfg.MaxRetries, nil)
	case KindNoop, "":
		return Noop{}
	default:
		log.Warn("textproc: unknown summarizer type, falling back to noop", "type", cfg.Type)
		return Noop{}
	}
}
