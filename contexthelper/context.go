// Package contexthelper has small helpers shared by handlers and
// workers that need to bail out early on cancelled contexts.
package contexthelper

import "context"

// CheckCancellation returns the context's error if it has been
// cancelled, nil otherwise.
func CheckCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
