package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/usemanusai/tce/internal/definition"
)

// templateSummary is the list view of a workflow template.
type templateSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Mode        string `json:"mode,omitempty"`
	TaskCount   int    `json:"task_count"`
	Checksum    string `json:"checksum"`
}

func handleDefinitionList(defs *definition.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		templates := defs.All()
		summaries := make([]templateSummary, len(templates))
		for i, tpl := range templates {
			summaries[i] = templateSummary{
				ID:          tpl.ID,
				Name:        tpl.Name,
				Description: tpl.Description,
				Mode:        tpl.Mode,
				TaskCount:   len(tpl.Tasks),
				Checksum:    tpl.Checksum,
			}
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":     summaries,
			"checksum": defs.Checksum(),
		})
	}
}

func handleDefinitionGet(defs *definition.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "definitionID")
		tpl, ok := defs.Get(id)
		if !ok {
			WriteNotFound(w, "template "+id+" not found")
			return
		}
		WriteJSON(w, http.StatusOK, tpl)
	}
}
