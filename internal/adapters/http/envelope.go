package httpadapter

import (
	"encoding/json"
	"net/http"

	"github.com/kirillkom/pdfqa-gateway/internal/core/domain"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func writeResult[T any](w http.ResponseWriter, status int, res domain.Result[T]) {
	if !res.OK() {
		writeError(w, res.Err())
		return
	}
	writeJSON(w, status, envelope{Success: true, Data: res.Value()})
}

func writeError(w http.ResponseWriter, err error) {
	writeFailure(w, mapErrorToHTTPStatus(err), domain.KindOf(err), err.Error())
}

func writeFailure(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set(errorKindHeader, kind)
	writeJSON(w, status, envelope{Success: false, Error: message, Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
