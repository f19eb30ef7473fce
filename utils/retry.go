package utils

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Retry runs op up to attempts times with exponential backoff, starting at
// base and doubling between tries. The last error is returned when every
// attempt fails. Context cancellation stops the loop early.
func Retry(ctx context.Context, attempts int, base time.Duration, name string, op func(ctx context.Context) error) error {
	logger := GetLogger()

	var err error
	delay := base
	for i := 1; i <= attempts; i++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		logger.Warn("retrying operation",
			zap.String("op", name),
			zap.Int("attempt", i),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
