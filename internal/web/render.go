package web

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/golang/glog"

	"github.com/hpungsan/pied/internal/errors"
)

// renderError writes err as a JSON error body with the error's HTTP status.
func renderError(w http.ResponseWriter, err error) {
	renderPartial(w, err, nil)
}

// renderPartial writes err like renderError. A non-nil result is included
// under "result" to show what an operation got done before failing.
func renderPartial(w http.ResponseWriter, err error, result any) {
	var pErr *errors.PiedError
	if !stderrors.As(err, &pErr) {
		pErr = errors.NewInternal(err)
	}
	if pErr.Status >= 500 {
		glog.Warningf("web: %v", err)
	}

	body := map[string]any{
		"error": map[string]any{
			"code":    string(pErr.Code),
			"message": pErr.Message,
			"status":  pErr.Status,
		},
	}
	if result != nil {
		body["result"] = result
	}
	renderJSON(w, pErr.Status, body)
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
