package providers

import (
	"context"
	"time"
)

// shutdownTimeout bounds how long one service may take to stop.
const shutdownTimeout = 30 * time.Second

func shutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), shutdownTimeout)
}
