package service

import (
	"errors"
	"fmt"

	"storefront/internal/apperr"
	"storefront/internal/session"
)

func requireSession(sess *session.Session) error {
	if sess == nil {
		return apperr.ErrAuthRequired
	}
	return nil
}

func requireAdmin(sess *session.Session) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if !sess.IsAdmin() {
		return apperr.ErrForbidden
	}
	return nil
}

// unavailable tags an infrastructure failure as retryable unless it already
// carries a store error kind
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrStoreUnavailable) || errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
}
