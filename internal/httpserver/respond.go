package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kollabhq/kollab/internal/apierror"
)

// Respond writes a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

// RespondProblem writes err as an RFC 7807 problem document (§4.6/§6's wire
// contract). dev controls whether an unclassified error's message is shown.
func RespondProblem(w http.ResponseWriter, err error, dev bool) {
	apierror.WriteProblem(w, err, dev)
}
