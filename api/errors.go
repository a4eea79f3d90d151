package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/tiercade/tiercade/errs"
)

// errorBody is the JSON shape spec §6 requires for every error response.
type errorBody struct {
	Error       string `json:"error"`
	Message     string `json:"message,omitempty"`
	Stack       string `json:"stack,omitempty"`
	MappedStack string `json:"mappedStack,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates err into the status/body contract of spec §6/§7.
// A plain (non-*errs.Error) error is treated as an unclassified runtime
// failure and reported as 500, never leaking its raw message as the Kind.
func writeError(w http.ResponseWriter, err error) {
	e, ok := err.(*errs.Error)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "RuntimeError", Message: err.Error()})
		return
	}
	if e.Kind == errs.KindRateLimited && e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	writeJSON(w, e.HTTPStatus(), errorBody{
		Error:       string(e.Kind),
		Message:     e.Message,
		Stack:       e.Stack,
		MappedStack: e.MappedStack,
	})
}
