package consumer

import (
	"context"
	"errors"
	"net"
)

// isTransient reports whether a store error is worth retrying: timeouts and
// connectivity failures. Anything else (constraint violations, bad data) is
// permanent and goes to the dead-letter table.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
