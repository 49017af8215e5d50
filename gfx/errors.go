package gfx

import "github.com/cockroachdb/errors"

var (
	// ErrCreationFailure marks any failed native creation or allocation call.
	// Host and device memory exhaustion are reported the same way.
	ErrCreationFailure = errors.New("graphics resource creation failed")

	// ErrUnsupportedSurfaceState is returned while the surface cannot back a
	// swapchain, e.g. a minimized window reporting a zero extent. The caller should
	// wait for a usable extent and rebuild.
	ErrUnsupportedSurfaceState = errors.New("surface cannot back a swapchain")

	// ErrSurfaceOutOfDate is returned by acquire/present when the swapchain no
	// longer matches the surface and must be rebuilt.
	ErrSurfaceOutOfDate = errors.New("swapchain out of date")

	// ErrInvalidState is returned when a lifecycle call is made out of order.
	ErrInvalidState = errors.New("invalid lifecycle state")
)

// CreationFailure wraps err with a message and marks it as ErrCreationFailure.
func CreationFailure(err error, format string, args ...interface{}) error {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrCreationFailure)
}
