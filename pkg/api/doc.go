// Package api exposes the retention engine over HTTP.
//
// Every JSON response uses one envelope:
//
//	{"success": true, "data": {...}}
//	{"success": false, "error": {"code": "validation_error", "message": "...", "field": "retention_period"}}
//
// Errors map to status codes by kind: validation 400, unauthenticated 401,
// not found 404, conflict 409 and anything else 500. Internal error details
// are logged but never returned.
//
// # Routes
//
//	GET    /api/v1/policies
//	POST   /api/v1/policies
//	GET    /api/v1/policies/{id}
//	PATCH  /api/v1/policies/{id}
//	DELETE /api/v1/policies/{id}
//	PUT    /api/v1/policies/{id}/active
//	GET    /api/v1/policies/{id}/containers
//	PUT    /api/v1/policies/{id}/containers
//	GET    /api/v1/containers/unassigned
//	GET    /api/v1/containers/{id}/policies
//
//	GET    /api/v1/files/{fileID}/retention
//	PUT    /api/v1/files/{fileID}/retention
//	DELETE /api/v1/files/{fileID}/retention
//	GET    /api/v1/files/{fileID}/policy
//	GET    /api/v1/files/{fileID}/notifications
//	POST   /api/v1/retention/preview
//	POST   /api/v1/retention/check
//	GET    /api/v1/retention/mine
//	GET    /api/v1/retention/upcoming
//
//	POST   /api/v1/runs
//	GET    /api/v1/runs/last
//	POST   /api/v1/records/{id}/process
//	GET    /api/v1/logs
//	GET    /api/v1/logs/export
//	GET    /api/v1/stats
//
// Health probes and the metrics endpoint are mounted outside /api and are
// never authenticated.
package api
