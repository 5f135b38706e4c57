// Package http exposes cellar models over a small REST API.
//
// Every configured namespace is served by a Service, normally the
// *cellar.Model bound to that namespace:
//
//	GET    /{ns}?limit=&skip=   list records (ListResult JSON)
//	POST   /{ns}                create a record
//	GET    /{ns}/{id}           record metadata
//	PATCH  /{ns}/{id}           update fields from a JSON object
//	DELETE /{ns}/{id}           remove a record, returns the removed record
//	GET    /{ns}/{id}/data      stream the record content
//	PUT    /{ns}/{id}/data      replace the record content
//
// # Creating Records
//
// POST accepts multipart/form-data (form values are fields, the "data" file
// part is the content), application/json (fields only, for directories), or a
// raw body with fields in the query string:
//
//	curl -F name=report.pdf -F data=@report.pdf localhost:5708/files
//	curl -H 'Content-Type: application/json' -d '{"name":"docs","type":"directory"}' localhost:5708/files
//	curl --data-binary @notes.txt -H 'Content-Type: text/plain' 'localhost:5708/files?name=notes.txt'
//
// # Errors
//
// Errors are JSON objects with "error" and "message" keys. Validation and
// transform failures map to 400, conflicts to 409, missing records and
// namespaces to 404, oversized bodies to 413 and storage failures to 500.
//
// # Usage
//
//	handler := http.NewHandler(&http.HandlerConfig{
//	    Services: map[string]http.Service{"files": filesModel},
//	})
//	srv := http.NewServer(":5708", handler.Router())
//	srv.ListenAndServe()
package http
