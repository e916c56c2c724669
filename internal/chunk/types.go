package chunk

import (
	"github.com/Aman-CERP/amanfind/internal/config"
	"github.com/Aman-CERP/amanfind/internal/filetype"
)

// Chunk size defaults, in bytes.
const (
	DefaultMaxBytes     = 800
	DefaultOverlapBytes = 200
)

// Chunk is one retrievable unit of a file.
type Chunk struct {
	Ordinal   int
	Content   string
	StartByte int
	EndByte   int // exclusive
	StartLine int // 1-indexed
	EndLine   int // inclusive
	// Heading is the nearest markup header or the first code symbol.
	Heading string
}

// Policy bounds chunk sizes for one category.
type Policy struct {
	MaxBytes     int
	OverlapBytes int
	MinBytes     int
}

func (p Policy) normalized() Policy {
	if p.MaxBytes <= 0 {
		p.MaxBytes = DefaultMaxBytes
	}
	if p.OverlapBytes < 0 || p.OverlapBytes >= p.MaxBytes {
		p.OverlapBytes = 0
	}
	if p.MinBytes < 0 {
		p.MinBytes = 0
	}
	return p
}

// Policies maps each indexable category to its policy.
type Policies map[filetype.Category]Policy

// DefaultPolicies mirrors the config defaults.
func DefaultPolicies() Policies {
	return PoliciesFromConfig(config.NewConfig().Chunking)
}

// PoliciesFromConfig converts the chunking config section.
func PoliciesFromConfig(cfg config.ChunkingConfig) Policies {
	conv := func(p config.ChunkPolicy) Policy {
		return Policy{MaxBytes: p.MaxBytes, OverlapBytes: p.OverlapBytes, MinBytes: p.MinBytes}
	}
	return Policies{
		filetype.Text:     conv(cfg.Text),
		filetype.Markup:   conv(cfg.Markup),
		filetype.Code:     conv(cfg.Code),
		filetype.KeyValue: conv(cfg.KeyValue),
	}
}

// span is a half-open byte range with an optional heading.
type span struct {
	start, end int
	heading    string
}

// boundary marks where a logical unit starts.
type boundary struct {
	offset  int
	heading string
}
