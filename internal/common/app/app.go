package app

import (
	"context"
	"os/signal"
	"syscall"
)

// CreateContextWithShutdown returns a context that is cancelled on SIGINT or SIGTERM.
func CreateContextWithShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
