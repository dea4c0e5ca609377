// Package server runs the HTTP listener of the retention service and
// manages its graceful shutdown.
//
// The server only owns the listener lifecycle. Routes come from pkg/api
// and signal handling from the command that starts it:
//
//	srv := server.New(&cfg.Server, api.NewRouter(cfg, deps))
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// Start blocks until ctx is cancelled or Shutdown is called, then drains
// in-flight requests for at most ShutdownTimeout.
package server
