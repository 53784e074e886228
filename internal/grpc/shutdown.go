package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// Shutdown stops srv gracefully so unary calls in flight can finish. Streams
// still open when ctx expires are cut off with a hard stop. It reports whether
// the graceful stop completed in time.
func Shutdown(ctx context.Context, srv *grpc.Server) bool {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		srv.Stop()
		<-done
		return false
	}
}
