// Package tls builds the HTTPS configuration of the API server.
//
// The key pair is loaded once at startup and then checked for renewal on
// an interval, so rotated certificates take effect without a restart.
//
//	tlsCfg, reloader, err := tls.ServerConfig(&cfg.Server.TLS)
//	go reloader.Watch(ctx)
//	ln = tls.NewListener(ln, tlsCfg)
package tls
