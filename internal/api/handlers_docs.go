package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// handleGetFiling reports whether a filing is indexed.
func (s *Server) handleGetFiling(w http.ResponseWriter, r *http.Request) {
	accession := strings.TrimSpace(chi.URLParam(r, "accession"))
	ok, err := s.deps.Index.HasAccession(r.Context(), accession)
	if err != nil {
		jsonError(w, "failed to look up filing: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		jsonError(w, "filing not indexed", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"accession": accession,
		"indexed":   true,
	})
}

// handleDeleteFiling removes every chunk and image record of a filing.
func (s *Server) handleDeleteFiling(w http.ResponseWriter, r *http.Request) {
	accession := strings.TrimSpace(chi.URLParam(r, "accession"))
	n, err := s.deps.Index.DeleteAccession(r.Context(), accession)
	if err != nil {
		jsonError(w, "failed to delete filing: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("filing deleted", "accession", accession, "records", n)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"accession":       accession,
		"records_deleted": n,
	})
}
