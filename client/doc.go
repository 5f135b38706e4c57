// Package client is a Go client for the cellar HTTP API.
//
// # Usage
//
//	c, err := client.New("http://localhost:5708")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	f, _ := os.Open("report.pdf")
//	defer f.Close()
//
//	rec, err := c.Create(ctx, "files", client.CreateRequest{
//	    Name:   "report.pdf",
//	    Dir:    "/reports",
//	    Fields: map[string]any{"owner": "alice"},
//	    Data:   f,
//	})
//
//	body, info, err := c.Download(ctx, "files", rec.ID)
//	defer body.Close()
//
// # Errors
//
// Non-2xx responses are returned as *APIError. Use errors.Is with
// ErrNotFound, ErrConflict or ErrBadRequest to check the status class, or
// errors.As to read the error code and field.
package client
