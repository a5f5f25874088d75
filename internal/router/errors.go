package router

import "errors"

// ErrInvalidArgument indicates the caller's repository reference is unknown.
var ErrInvalidArgument = errors.New("router: invalid argument")

// ErrRolloutGated indicates the caller is excluded by the Rollout
// Controller and no fallback path exists.
var ErrRolloutGated = errors.New("router: rollout gated")

// ErrBackendUnavailable indicates the chosen back-end refused dispatch
// after one retry.
var ErrBackendUnavailable = errors.New("router: backend unavailable")
