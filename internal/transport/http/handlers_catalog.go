package httptransport

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"kycflow/internal/catalog"
)

// CatalogHandler serves the embedded country and document-type metadata.
type CatalogHandler struct {
	catalog *catalog.Catalog
}

func NewCatalogHandler(c *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/catalog/countries", h.handleCountries)
	r.Get("/catalog/countries/{code}/documents", h.handleDocuments)
}

func (h *CatalogHandler) handleCountries(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"countries": h.catalog.Countries()})
}

func (h *CatalogHandler) handleDocuments(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "code")))
	if !h.catalog.HasCountry(code) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: CodeNotFound, Message: "unknown country " + code})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"country":        code,
		"document_types": h.catalog.DocumentTypes(code),
	})
}
