package location

import "errors"

// ErrPositionUnavailable is reported when the platform cannot produce a fix.
// Non-fatal; the provider keeps retrying.
var ErrPositionUnavailable = errors.New("position unavailable")
