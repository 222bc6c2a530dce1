package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dgallion1/filingrag/internal/retrieval"
)

// handleRetrieve runs a filtered similarity search. With ?answer=true the
// retrieved chunks are also passed to the generation model.
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		jsonError(w, "failed to read request body", http.StatusRequestEntityTooLarge)
		return
	}

	req, err := retrieval.DecodeRequest(body)
	if err != nil {
		writeRetrievalError(w, err)
		return
	}

	res, err := s.deps.Retriever.Retrieve(r.Context(), req)
	if err != nil {
		writeRetrievalError(w, err)
		return
	}

	wantAnswer, _ := strconv.ParseBool(r.URL.Query().Get("answer"))
	if !wantAnswer {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
		return
	}

	if s.deps.Generator == nil {
		jsonError(w, "answer generation unavailable", http.StatusServiceUnavailable)
		return
	}
	answer, err := retrieval.Answer(r.Context(), s.deps.Generator, req.Query, res)
	if err != nil {
		s.log.Error("answer generation failed", "query", req.Query, "error", err)
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"answer":  answer,
		"model":   s.cfg.GenerationModel,
		"results": res,
	})
}

func writeRetrievalError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, retrieval.ErrMissingQuery),
		errors.Is(err, retrieval.ErrInvalidRequest),
		errors.Is(err, retrieval.ErrInvalidFilter):
		code = http.StatusBadRequest
	case errors.Is(err, retrieval.ErrEmbedQuery):
		code = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(retrieval.NewErrorResult(err))
}
