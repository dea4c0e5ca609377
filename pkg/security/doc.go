// Package security groups the transport and credential checks of the
// retention API: tls serves HTTPS with hot-reloaded certificates and auth
// validates static API keys issued to service clients.
package security
