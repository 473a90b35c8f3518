// Package di wires config, logging, telemetry, the adaptive Redis pool and
// the rate limiter through samber/do.
package di

import "github.com/samber/do/v2"

// Resolve builds, or returns the already built, service of type T.
// Services provided by callers on Injector() resolve the same way as the
// built-in ones.
func Resolve[T any](c *Container) (T, error) {
	return do.Invoke[T](c.injector)
}
