package httpx

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/shopforge/go-shop-orders/internal/errs"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps domain errors onto stable HTTP statuses and codes.
// Infrastructure failures are logged server-side and surface as an opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *errs.Error
	if errors.As(err, &de) {
		status := http.StatusInternalServerError
		switch de.Kind {
		case errs.KindValidation:
			status = http.StatusBadRequest
		case errs.KindNotFound:
			status = http.StatusNotFound
		case errs.KindConflict:
			status = http.StatusConflict
		}
		writeJSON(w, status, errBody{Code: de.Code, Message: de.Message})
		return
	}
	log.Printf("http: %s %s: %v", r.Method, r.URL.Path, err)
	writeJSON(w, http.StatusInternalServerError, errBody{Code: "INTERNAL", Message: "internal server error"})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errs.Validation("INVALID_BODY", "request body is not valid JSON")
	}
	return nil
}
