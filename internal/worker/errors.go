package worker

import (
	"errors"

	"gorm.io/gorm"

	"github.com/lei/hybrid-capture/internal/forgeclient"
)

// IsNotFound reports whether err originates from the forge's 404 response.
func IsNotFound(err error) bool {
	return errors.Is(err, forgeclient.ErrNotFound)
}

// IsRateExhausted reports whether err is the governor's admission refusal.
func IsRateExhausted(err error) bool {
	return errors.Is(err, forgeclient.ErrRateExhausted)
}

// IsTransport reports whether err is a networking/timeout failure eligible
// for the bounded retry-with-back-off policy.
func IsTransport(err error) bool {
	var t *forgeclient.ErrTransport
	return errors.As(err, &t)
}

// IsStoreConflict reports whether err is a unique-key violation on upsert,
// which the policy table treats as an idempotent success.
func IsStoreConflict(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
