// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains the HTTP handlers of the admin API.

# Handler Types

Each handler wraps the admin node and the process config:

  - SurveyHandler: catalog listing and authoring
  - ResultsHandler: CSV export, vote links, the admin's ledger
  - SecurityHandler: security log and connectivity status

	surveyHandler := handlers.NewSurveyHandler(admin)

# Authoring

	GET    /surveys       → ListSurveys
	POST   /surveys       → CreateSurvey
	GET    /surveys/{id}  → GetSurvey
	PUT    /surveys/{id}  → UpdateSurvey
	DELETE /surveys/{id}  → DeleteSurvey

Every change is persisted and then broadcast as a full retained snapshot.
Changes require X-Admin-Key when ADMIN_KEY is set.

# Results

	GET /surveys/{id}/results.csv → ExportCSV
	GET /surveys/{id}/link        → GetLink
	GET /surveys/{id}/votes       → GetVotes

# Monitoring

	GET /security-log → GetSecurityLog (?survey= filters)
	GET /status       → GetStatus
*/
package handlers
