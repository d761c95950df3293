package order

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-atelier/internal/common"
	"github.com/noah-isme/backend-atelier/internal/shipping"
)

// Handler exposes order read and admin lifecycle endpoints.
type Handler struct {
	Svc *Service
}

type workflowRequest struct {
	Step           shipping.WorkflowStep `json:"workflowStep"`
	TrackingNumber string                `json:"trackingNumber"`
}

// Get returns an order by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	ord, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, ord)
}

// MarkPaid confirms a bank transfer.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	ord, err := h.Svc.MarkPaid(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, ord)
}

// PatchWorkflow advances the workflow step of a paid order.
func (h *Handler) PatchWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	var req workflowRequest
	if !common.DecodeJSON(w, r, &req) {
		return
	}
	if req.Step == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "workflowStep is required", nil)
		return
	}
	ord, err := h.Svc.UpdateWorkflow(r.Context(), id, req.Step, req.TrackingNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, ord)
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return uuid.Nil, false
	}
	return id, true
}

var errorRules = common.ErrorRules{
	{Target: ErrNotFound, Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "order not found"},
	{Target: shipping.ErrInvalidTransition, Status: http.StatusConflict, Code: "INVALID_TRANSITION"},
	{Target: ErrInvalidState, Status: http.StatusConflict, Code: "INVALID_STATE"},
}

func writeError(w http.ResponseWriter, err error) {
	errorRules.Write(w, err, "order operation failed")
}
