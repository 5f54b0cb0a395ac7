// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package router defines HTTP routes for the admin API.

	mux := router.NewRouter(admin, cfg)

# Endpoints

Health:

	GET /health

Catalog (changes require X-Admin-Key when ADMIN_KEY is set):

	GET    /surveys      - List the catalog
	POST   /surveys      - Create a survey
	GET    /surveys/{id} - One survey
	PUT    /surveys/{id} - Edit a survey
	DELETE /surveys/{id} - Delete a survey

Results:

	GET /surveys/{id}/results.csv - CSV report
	GET /surveys/{id}/link        - Vote link
	GET /surveys/{id}/votes       - Admin ledger (strict mode)

Monitoring:

	GET /security-log - Blocked duplicate attempts, newest first
	GET /status       - Broker connectivity and counts
*/
package router
