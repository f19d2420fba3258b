package app

import (
	"fmt"
	"time"

	"github.com/bft-labs/serialship/internal/domain"
	"github.com/bft-labs/serialship/internal/protocol"
)

// Default transfer parameters.
const (
	DefaultChunkSize         = 220
	DefaultChunkDelay        = 20 * time.Millisecond
	DefaultMaxRetries        = 5
	DefaultBackoffBase       = 500 * time.Millisecond
	DefaultBackoffMax        = 5 * time.Second
	DefaultHandshakeTimeout  = 8 * time.Second
	DefaultAckTimeout        = 5 * time.Second
	DefaultCompleteTimeout   = 10 * time.Second
	DefaultCloseTimeout      = 5 * time.Second
	DefaultDoneTimeout       = 2 * time.Second
	DefaultInactivityTimeout = 30 * time.Second

	// MaxChunkSize keeps every chunk inside a dataset frame's u16 length.
	MaxChunkSize = 0xFFFF
)

// FailurePolicy decides what a non-critical file failure does to the
// session.
type FailurePolicy string

const (
	// PolicySkip records the failure and continues with the next file.
	PolicySkip FailurePolicy = "skip"

	// PolicyAbort ends the session on the first failure.
	PolicyAbort FailurePolicy = "abort"
)

// TransferConfig parametrizes the single transfer engine shared by every
// variant and mode.
type TransferConfig struct {
	Variant domain.Variant
	Magic   string

	ChunkSize  uint32
	ChunkDelay time.Duration
	MaxRetries int

	BackoffBase time.Duration
	BackoffMax  time.Duration

	HandshakeTimeout  time.Duration
	AckTimeout        time.Duration
	CompleteTimeout   time.Duration
	CloseTimeout      time.Duration
	DoneTimeout       time.Duration
	InactivityTimeout time.Duration
	PollInterval      time.Duration

	FailurePolicy FailurePolicy
}

// DefaultTransferConfig returns the V2 defaults.
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		Variant:           domain.VariantV2,
		Magic:             protocol.DefaultMagic,
		ChunkSize:         DefaultChunkSize,
		ChunkDelay:        DefaultChunkDelay,
		MaxRetries:        DefaultMaxRetries,
		BackoffBase:       DefaultBackoffBase,
		BackoffMax:        DefaultBackoffMax,
		HandshakeTimeout:  DefaultHandshakeTimeout,
		AckTimeout:        DefaultAckTimeout,
		CompleteTimeout:   DefaultCompleteTimeout,
		CloseTimeout:      DefaultCloseTimeout,
		DoneTimeout:       DefaultDoneTimeout,
		InactivityTimeout: DefaultInactivityTimeout,
		PollInterval:      protocol.DefaultPollInterval,
		FailurePolicy:     PolicySkip,
	}
}

// Validate checks that the configuration is usable.
func (c TransferConfig) Validate() error {
	if c.Variant != domain.VariantV1 && c.Variant != domain.VariantV2 {
		return fmt.Errorf("%w: unknown variant %s", domain.ErrInvalidConfig, c.Variant)
	}
	if c.Magic == "" {
		return fmt.Errorf("%w: magic is required", domain.ErrInvalidConfig)
	}
	if c.ChunkSize == 0 || c.ChunkSize > MaxChunkSize {
		return fmt.Errorf("%w: chunk size must be in 1..%d", domain.ErrInvalidConfig, MaxChunkSize)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: max retries must be at least 1", domain.ErrInvalidConfig)
	}
	if c.ChunkDelay < 0 || c.BackoffBase < 0 || c.BackoffMax < 0 {
		return fmt.Errorf("%w: delays must not be negative", domain.ErrInvalidConfig)
	}
	for name, d := range map[string]time.Duration{
		"handshake timeout": c.HandshakeTimeout,
		"ack timeout":       c.AckTimeout,
		"complete timeout":  c.CompleteTimeout,
		"close timeout":     c.CloseTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", domain.ErrInvalidConfig, name)
		}
	}
	switch c.FailurePolicy {
	case PolicySkip, PolicyAbort, "":
	default:
		return fmt.Errorf("%w: unknown failure policy %q", domain.ErrInvalidConfig, c.FailurePolicy)
	}
	return nil
}

// Codec returns the frame codec for this configuration.
func (c TransferConfig) Codec() protocol.Codec {
	return protocol.NewCodec(c.Magic, c.Variant)
}
