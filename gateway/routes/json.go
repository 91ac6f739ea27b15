package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const requestLimit = 1 << 20 // 1 MiB

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

func decodeJSON(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return badRequest{errors.New("missing request body")}
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, requestLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return badRequest{fmt.Errorf("decode request: %w", err)}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func loanIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "loanID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest{fmt.Errorf("invalid loan id %q", raw)}
	}
	return id, nil
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}

func asBadRequest(err error) error {
	if err == nil {
		return nil
	}
	return badRequest{err}
}
