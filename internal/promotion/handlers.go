package promotion

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-atelier/internal/common"
)

// Handler exposes administrative promotion code endpoints.
type Handler struct {
	Svc *Service
}

// Create inserts a new promotion code.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promotion service not configured", nil)
		return
	}
	var def Definition
	if !common.DecodeJSON(w, r, &def) {
		return
	}
	code, err := h.Svc.Create(r.Context(), def)
	if err != nil {
		WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, code)
}

// List returns every promotion code.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	codes, err := h.Svc.List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	if codes == nil {
		codes = []Code{}
	}
	common.Data(w, http.StatusOK, codes)
}

// Get returns a promotion code by its code.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	code, err := h.Svc.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, code)
}

// Delete removes an unused promotion code.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WriteError renders promotion errors with their wire code.
func WriteError(w http.ResponseWriter, err error) {
	kind := Kind(err)
	if kind == "" {
		common.ErrorRules{}.Write(w, err, "promotion code operation failed")
		return
	}
	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrInUse):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidDefinition), errors.Is(err, ErrInvalidFilterCombination):
		status = http.StatusBadRequest
	}
	common.JSONError(w, status, kind, err.Error(), nil)
}
