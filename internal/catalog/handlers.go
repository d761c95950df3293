package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-atelier/internal/common"
)

// Handler exposes read-only catalog endpoints used by the storefront configurator.
type Handler struct {
	Svc *Service
}

// GetArticle returns an enabled article with its customization options.
func (h *Handler) GetArticle(w http.ResponseWriter, r *http.Request) {
	article, err := h.Svc.Article(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrArticleNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "article not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load article", nil)
		return
	}
	if !article.Enabled {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "article not found", nil)
		return
	}
	common.Data(w, http.StatusOK, article)
}
