package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/sagarc03/cellar"
)

const maxMemory = 32 << 20

// decodeCreate builds the create input from a request. Three encodings are
// accepted:
//
//   - multipart/form-data: form values become fields, the "data" file part
//     becomes the content
//   - application/json: a field object, used for directories
//   - anything else: the body is the content, fields come from the query
//     string and the declared type from Content-Type
func decodeCreate(r *http.Request) (cellar.Input, func(), error) {
	noop := func() {}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		return decodeMultipart(r)
	case "application/json":
		fields, err := decodeFields(r.Body)
		if err != nil {
			return cellar.Input{}, noop, err
		}
		if _, ok := fields[cellar.FieldData]; ok {
			return cellar.Input{}, noop, invalidInput("content cannot be sent as JSON, use multipart/form-data")
		}
		return inputFromFields(fields), noop, nil
	default:
		fields := make(map[string]any)
		for k, vs := range r.URL.Query() {
			if len(vs) > 0 {
				fields[k] = vs[0]
			}
		}
		in := inputFromFields(fields)
		if in.Type == "" {
			in.Type = declaredType(r)
		}
		if !isDirectory(in.Type) {
			body, err := requestBody(r)
			if err != nil {
				return cellar.Input{}, noop, err
			}
			in.Data = body
		}
		return in, noop, nil
	}
}

func decodeMultipart(r *http.Request) (cellar.Input, func(), error) {
	noop := func() {}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return cellar.Input{}, noop, err
		}
		return cellar.Input{}, noop, invalidInput("malformed multipart body: %v", err)
	}
	form := r.MultipartForm
	cleanup := func() { _ = form.RemoveAll() }

	fields := make(map[string]any, len(form.Value))
	for k, vs := range form.Value {
		if len(vs) > 0 {
			fields[k] = vs[0]
		}
	}
	in := inputFromFields(fields)

	headers := form.File[cellar.FieldData]
	if len(headers) == 0 {
		return in, cleanup, nil
	}

	f, err := headers[0].Open()
	if err != nil {
		cleanup()
		return cellar.Input{}, noop, err
	}
	if in.Type == "" {
		if ct := headers[0].Header.Get("Content-Type"); ct != "application/octet-stream" {
			in.Type = ct
		}
	}
	if in.Name == "" {
		in.Name = headers[0].Filename
	}
	in.Data = f

	return in, func() {
		_ = f.Close()
		cleanup()
	}, nil
}

func decodeFields(body io.Reader) (map[string]any, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any)
	if len(bytes.TrimSpace(b)) == 0 {
		return fields, nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, invalidInput("malformed JSON body: %v", err)
	}
	for k, v := range fields {
		if n, ok := v.(json.Number); ok {
			fields[k] = numberValue(n)
		}
	}
	return fields, nil
}

func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// requestBody returns the request body, or nil when the request carries no
// bytes at all.
func requestBody(r *http.Request) (io.Reader, error) {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil, nil
	}

	var first [1]byte
	n, err := io.ReadFull(r.Body, first[:])
	if n == 0 {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return io.MultiReader(bytes.NewReader(first[:n]), r.Body), nil
}

// inputFromFields moves string name, dir and type values out of fields into
// an Input. Values of other types stay in fields for the schema to convert.
func inputFromFields(fields map[string]any) cellar.Input {
	var in cellar.Input
	take := func(key string) string {
		s, ok := fields[key].(string)
		if !ok {
			return ""
		}
		delete(fields, key)
		return s
	}
	in.Name = take(cellar.FieldName)
	in.Dir = take(cellar.FieldDir)
	in.Type = take(cellar.FieldType)
	if len(fields) > 0 {
		in.Fields = fields
	}
	return in
}

func declaredType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType == "application/octet-stream" {
		return ""
	}
	return mediaType
}

func isDirectory(typ string) bool {
	return strings.EqualFold(strings.TrimSpace(typ), cellar.DirectoryType)
}
