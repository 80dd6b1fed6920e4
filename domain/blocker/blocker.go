package blocker

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type BlockerType string

const (
	ArpspoofBlockerType BlockerType = "ARPSPOOF_BLOCKER"
)

var (
	// ErrToolUnavailable means the suppression tool is missing or not
	// executable on this host.
	ErrToolUnavailable = errors.New("suppression tool unavailable")
	// ErrPermission means the suppression tool requires elevated
	// privilege the process does not hold.
	ErrPermission = errors.New("insufficient privilege to run suppression tool")
	// ErrConfiguration means the block target itself is invalid.
	ErrConfiguration = errors.New("invalid block target")
)

type BlockerConfig struct {
	Name          string
	Type          BlockerType
	Specification json.RawMessage
}

// BlockTarget identifies one bounded suppression window: which
// gateway to desynchronize, on which interface, for how long.
type BlockTarget struct {
	Interface string
	Gateway   string
	Timeout   time.Duration
}

func (t BlockTarget) validate() error {
	if t.Interface == "" || t.Gateway == "" {
		return ErrConfiguration
	}
	if t.Timeout <= 0 {
		return ErrConfiguration
	}
	return nil
}

// Blocker suppresses network connectivity for a bounded duration.
// Block returns once the window has elapsed or ctx is done; it never
// leaves the suppression running past Timeout.
type Blocker interface {
	GetName() string
	DecodeConfig(c BlockerConfig) error
	Block(ctx context.Context, t BlockTarget) error
}
