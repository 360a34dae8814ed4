// Package handlers provides HTTP handlers for the session API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/chakravue/fieldeval/internal/api/middleware"
	"github.com/chakravue/fieldeval/internal/field"
	"github.com/chakravue/fieldeval/internal/form"
	"github.com/chakravue/fieldeval/internal/layout"
)

const maxBodyBytes = 1 << 20

// FormHandler exposes forms and their fields over HTTP
type FormHandler struct {
	store  *form.Store
	logger *zap.Logger
	tracer trace.Tracer

	// OnFormsChanged, if set, receives the number of open forms after a
	// form is created or closed
	OnFormsChanged func(n int)
}

// NewFormHandler creates a new handler
func NewFormHandler(store *form.Store, logger *zap.Logger) *FormHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormHandler{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("form-handler"),
	}
}

// Routes returns the handler routes
func (h *FormHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Route("/{formID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Post("/fields", h.MountField)
		r.Route("/fields/{fieldID}", func(r chi.Router) {
			r.Get("/", h.GetField)
			r.Delete("/", h.UnmountField)
			r.Put("/value", h.SetValue)
			r.Put("/layout", h.SetLayout)
			r.Put("/editable", h.SetEditable)
			r.Post("/edit", h.Activate)
			r.Post("/input", h.Input)
			r.Post("/keys", h.Key)
			r.Post("/blur", h.Blur)
			r.Post("/cancel", h.Cancel)
		})
	})
	return r
}

// FormResponse is a form with every field
type FormResponse struct {
	ID     string            `json:"id"`
	Fields []field.Snapshot  `json:"fields"`
	Values map[string]string `json:"values"`
}

// ValueRequest carries a value or a draft
type ValueRequest struct {
	Value string `json:"value"`
}

// EditableRequest toggles editability
type EditableRequest struct {
	Editable bool `json:"editable"`
}

// KeyRequest is a keyboard command
type KeyRequest struct {
	Key   string `json:"key"`
	Shift bool   `json:"shift"`
}

// Create handles POST /forms
func (h *FormHandler) Create(w http.ResponseWriter, r *http.Request) {
	f := h.store.Create()
	h.formsChanged()
	h.json(w, http.StatusCreated, formResponse(f))
}

// Get handles GET /forms/{formID}
func (h *FormHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, ok := h.form(w, r)
	if !ok {
		return
	}
	h.json(w, http.StatusOK, formResponse(f))
}

// Delete handles DELETE /forms/{formID}
func (h *FormHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(chi.URLParam(r, "formID")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.formsChanged()
	w.WriteHeader(http.StatusNoContent)
}

// MountField handles POST /forms/{formID}/fields
func (h *FormHandler) MountField(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "mount_field")
	defer span.End()

	f, ok := h.form(w, r)
	if !ok {
		return
	}
	var req form.FieldSpec
	if !h.decode(w, r, &req) {
		return
	}
	switch req.Kind {
	case "", field.KindPlainText, field.KindSecret:
	default:
		h.jsonError(w, "unknown kind "+string(req.Kind), http.StatusBadRequest)
		return
	}

	snap, err := f.Mount(req)
	if err != nil {
		h.failInput(w, r, err)
		return
	}
	span.SetAttributes(
		attribute.String("form_id", f.ID()),
		attribute.String("field_id", snap.ID))
	h.json(w, http.StatusCreated, snap)
}

// GetField handles GET /forms/{formID}/fields/{fieldID}
func (h *FormHandler) GetField(w http.ResponseWriter, r *http.Request) {
	h.withField(w, r, func(f *form.Form, id string) error { return nil })
}

// UnmountField handles DELETE /forms/{formID}/fields/{fieldID}
func (h *FormHandler) UnmountField(w http.ResponseWriter, r *http.Request) {
	f, ok := h.form(w, r)
	if !ok {
		return
	}
	if err := f.Unmount(chi.URLParam(r, "fieldID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetValue handles PUT /forms/{formID}/fields/{fieldID}/value
func (h *FormHandler) SetValue(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withField(w, r, func(f *form.Form, id string) error { return f.SetValue(id, req.Value) })
}

// SetLayout handles PUT /forms/{formID}/fields/{fieldID}/layout
func (h *FormHandler) SetLayout(w http.ResponseWriter, r *http.Request) {
	var req layout.Spec
	if !h.decode(w, r, &req) {
		return
	}
	h.withField(w, r, func(f *form.Form, id string) error { return f.SetLayout(id, req) })
}

// SetEditable handles PUT /forms/{formID}/fields/{fieldID}/editable
func (h *FormHandler) SetEditable(w http.ResponseWriter, r *http.Request) {
	var req EditableRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withField(w, r, func(f *form.Form, id string) error { return f.SetEditable(id, req.Editable) })
}

// Activate handles POST /forms/{formID}/fields/{fieldID}/edit. Activating
// a read-only field is a no-op.
func (h *FormHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.withField(w, r, func(f *form.Form, id string) error {
		_, err := f.Activate(id)
		return err
	})
}

// Input handles POST /forms/{formID}/fields/{fieldID}/input
func (h *FormHandler) Input(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withField(w, r, func(f *form.Form, id string) error { return f.Input(id, req.Value) })
}

// Key handles POST /forms/{formID}/fields/{fieldID}/keys. Tab moves focus,
// so the whole form is returned.
func (h *FormHandler) Key(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if !h.decode(w, r, &req) {
		return
	}
	key, err := field.ParseKey(req.Key)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	f, ok := h.form(w, r)
	if !ok {
		return
	}
	if err := f.Key(chi.URLParam(r, "fieldID"), key, req.Shift); err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, formResponse(f))
}

// Blur handles POST /forms/{formID}/fields/{fieldID}/blur
func (h *FormHandler) Blur(w http.ResponseWriter, r *http.Request) {
	h.withField(w, r, func(f *form.Form, id string) error { return f.Blur(id) })
}

// Cancel handles POST /forms/{formID}/fields/{fieldID}/cancel
func (h *FormHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.withField(w, r, func(f *form.Form, id string) error { return f.Cancel(id) })
}

// withField runs op against the addressed field and responds with its
// snapshot
func (h *FormHandler) withField(w http.ResponseWriter, r *http.Request, op func(f *form.Form, id string) error) {
	f, ok := h.form(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "fieldID")
	if err := op(f, id); err != nil {
		h.failInput(w, r, err)
		return
	}
	snap, err := f.Snapshot(id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.json(w, http.StatusOK, snap)
}

func (h *FormHandler) form(w http.ResponseWriter, r *http.Request) (*form.Form, bool) {
	f, err := h.store.Get(chi.URLParam(r, "formID"))
	if err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return f, true
}

func (h *FormHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *FormHandler) formsChanged() {
	if h.OnFormsChanged != nil {
		h.OnFormsChanged(h.store.Len())
	}
}

func formResponse(f *form.Form) FormResponse {
	fields := f.Snapshots()
	if fields == nil {
		fields = []field.Snapshot{}
	}
	return FormResponse{ID: f.ID(), Fields: fields, Values: f.Values()}
}

// statusFor maps known errors to a status. ok is false for unknown errors.
func statusFor(err error) (code int, ok bool) {
	switch {
	case errors.Is(err, form.ErrFormNotFound), errors.Is(err, form.ErrFieldNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, form.ErrFieldExists), errors.Is(err, form.ErrClosed), errors.Is(err, field.ErrNotEditing):
		return http.StatusConflict, true
	case errors.Is(err, field.ErrUnknownKey), errors.Is(err, field.ErrMissingID),
		errors.Is(err, layout.ErrNoFieldNode), errors.Is(err, layout.ErrMultipleFieldNodes),
		errors.Is(err, layout.ErrUnknownRole):
		return http.StatusBadRequest, true
	}
	return http.StatusInternalServerError, false
}

func (h *FormHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code, ok := statusFor(err)
	if !ok {
		h.logger.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
		h.jsonError(w, "internal error", code)
		return
	}
	h.jsonError(w, err.Error(), code)
}

// failInput treats unknown errors as a bad request body
func (h *FormHandler) failInput(w http.ResponseWriter, r *http.Request, err error) {
	if _, ok := statusFor(err); !ok {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.fail(w, r, err)
}

func (h *FormHandler) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

func (h *FormHandler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
