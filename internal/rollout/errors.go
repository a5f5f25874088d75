package rollout

import "errors"

// ErrInvalidArgument indicates a caller-supplied percentage outside [0,100].
var ErrInvalidArgument = errors.New("rollout: percentage out of range")

// ErrEmergencyStopped indicates the feature's config has emergency_stop set;
// update is refused until resume clears it.
var ErrEmergencyStopped = errors.New("rollout: feature is emergency-stopped")

// ErrVerifyMismatch indicates a rollback's read-back percentage did not
// match the expected value — a fatal condition for the health collaborator.
var ErrVerifyMismatch = errors.New("rollout: verify mismatch after rollback")

// DefaultFeature is the feature name used when a caller omits one.
const DefaultFeature = "hybrid_progressive_capture"
