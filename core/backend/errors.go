package backend

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/hicsail/anchor/core/logger"
	"github.com/hicsail/anchor/core/schema"
	"github.com/hicsail/anchor/core/store"
)

// ErrResourceNotFound is returned when a resource name is not registered
var ErrResourceNotFound = errors.New("resource not found")

// StoreError reports that the backing store, or a resource hook standing in
// for it, failed. It is a server fault, never a caller input problem.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %s", e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// writeError maps an engine error to exactly one HTTP status:
// unknown resource or absent update target to 404, schema validation
// failures to 409 with field-level details, everything else to 500.
// Authorization failures never reach this function, the handlers answer
// them directly with 401.
func (b *Backend) writeError(w http.ResponseWriter, r *http.Request, err error) {
	rlog := logger.FromContext(r.Context())

	if errors.Is(err, ErrResourceNotFound) || errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		rlog.Debugln("document validation failed:", verr)
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusConflict)
		jsonData, _ := json.Marshal(map[string]interface{}{
			"error":   "document validation failed",
			"details": verr.Details,
		})
		w.Write(jsonData)
		return
	}

	rlog.WithError(err).Errorln("store operation failed for", r.URL, r.Method)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
