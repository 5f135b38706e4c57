package http

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sagarc03/cellar"
)

// Service is the record API of one namespace. *cellar.Model implements it.
type Service interface {
	Create(ctx context.Context, in cellar.Input) (*cellar.Record, error)
	Get(ctx context.Context, id string) (*cellar.Record, error)
	List(ctx context.Context, q cellar.ListQuery) (cellar.ListResult, error)
	Patch(ctx context.Context, id string, fields map[string]any) (*cellar.Record, error)
	Remove(ctx context.Context, id string) (*cellar.Record, error)
}

var _ Service = (*cellar.Model)(nil)

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers" yaml:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

type HandlerConfig struct {
	// Services maps a namespace to the service handling its records.
	Services map[string]Service
	CORS     CORSConfig
	// MaxUploadSize limits request bodies in bytes. 0 means no limit.
	MaxUploadSize int64
}

// Handler provides HTTP handlers for record operations.
type Handler struct {
	config HandlerConfig
}

// NewHandler creates a new Handler with the given configuration.
func NewHandler(config *HandlerConfig) *Handler {
	return &Handler{config: *config}
}

// Router returns an http.Handler serving every configured namespace:
//
//	GET    /{ns}            list records
//	POST   /{ns}            create a record
//	GET    /{ns}/{id}       record metadata
//	PATCH  /{ns}/{id}       update fields
//	DELETE /{ns}/{id}       remove a record
//	GET    /{ns}/{id}/data  record content (HEAD for headers only)
//	PUT    /{ns}/{id}/data  replace record content
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	r.Use(LoggingMiddleware)

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	if h.config.MaxUploadSize > 0 {
		r.Use(MaxBodyMiddleware(h.config.MaxUploadSize))
	}

	r.Route("/{ns}", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}", h.handlePatch)
		r.Delete("/{id}", h.handleRemove)
		r.Get("/{id}/data", h.handleGetData)
		r.Put("/{id}/data", h.handlePutData)
	})

	return r
}

func (h *Handler) service(w http.ResponseWriter, r *http.Request) (Service, bool) {
	ns := chi.URLParam(r, "ns")
	svc, ok := h.config.Services[ns]
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown_namespace", "Unknown namespace "+strconv.Quote(ns))
		return nil, false
	}
	return svc, true
}

func writeNotFound(w http.ResponseWriter) {
	WriteError(w, http.StatusNotFound, "not_found", "Record not found")
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	var q cellar.ListQuery
	for name, dst := range map[string]*int{"limit": &q.Limit, "skip": &q.Skip} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			HandleError(w, invalidInput("%s must be an integer", name))
			return
		}
		*dst = n
	}

	result, err := svc.List(r.Context(), q)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	in, cleanup, err := decodeCreate(r)
	if err != nil {
		HandleError(w, err)
		return
	}
	defer cleanup()

	rec, err := svc.Create(r.Context(), in)
	if err != nil {
		HandleError(w, err)
		return
	}

	w.Header().Set("Location", r.URL.Path+"/"+rec.ID)
	_ = WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	rec, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		HandleError(w, err)
		return
	}
	if rec == nil {
		writeNotFound(w)
		return
	}

	_ = WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	fields, err := decodeFields(r.Body)
	if err != nil {
		HandleError(w, err)
		return
	}
	if _, has := fields[cellar.FieldData]; has {
		HandleError(w, invalidInput("content is replaced with PUT %s/data", r.URL.Path))
		return
	}

	rec, err := svc.Patch(r.Context(), chi.URLParam(r, "id"), fields)
	if err != nil {
		HandleError(w, err)
		return
	}
	if rec == nil {
		writeNotFound(w)
		return
	}

	_ = WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	rec, err := svc.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		HandleError(w, err)
		return
	}
	if rec == nil {
		writeNotFound(w)
		return
	}

	_ = WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleGetData(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	rec, err := svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		HandleError(w, err)
		return
	}
	if rec == nil {
		writeNotFound(w)
		return
	}
	if rec.Data == nil {
		WriteError(w, http.StatusNotFound, "no_content", "Record has no content")
		return
	}

	if rec.ETag != "" {
		etag := `"` + rec.ETag + `"`
		w.Header().Set("ETag", etag)
		if match := r.Header.Get("If-None-Match"); match == etag || match == rec.ETag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	content, err := rec.Data.Open(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}
	defer func() { _ = content.Close() }()

	w.Header().Set("Content-Type", rec.Type())
	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	w.Header().Set("Last-Modified", rec.UpdatedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	_, _ = io.Copy(w, content)
}

func (h *Handler) handlePutData(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.service(w, r)
	if !ok {
		return
	}

	fields := map[string]any{cellar.FieldData: r.Body}
	if declared := declaredType(r); declared != "" {
		fields[cellar.FieldType] = declared
	}

	rec, err := svc.Patch(r.Context(), chi.URLParam(r, "id"), fields)
	if err != nil {
		HandleError(w, err)
		return
	}
	if rec == nil {
		writeNotFound(w)
		return
	}

	_ = WriteJSON(w, http.StatusOK, rec)
}

// NewServer returns an http.Server for handler with header and idle timeouts set.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
