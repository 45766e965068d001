package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/openrooms/orc/internal/apierr"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// writeError maps err onto the {error:{code,message,details}} envelope
// spec.md §6.1/§7 define, defaulting untagged errors to 500 internal.
func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Internal(err.Error())
	}
	status := apierr.HTTPStatus(apiErr.Kind)
	if apiErr.Kind == apierr.KindRateLimited {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    string(apiErr.Kind),
		Message: apiErr.Message,
		Details: apiErr.Details,
	}})
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierr.BadRequest("malformed json body")
	}
	return nil
}
