package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jobgate/jobgate/internal/envelope"
)

// writeResponse renders a dispatcher response: cache directives become
// headers, the envelope body is the JSON payload.
func writeResponse(w http.ResponseWriter, res *envelope.Response) {
	for k, v := range res.Headers {
		w.Header().Set(k, v)
	}
	writeJSON(w, res.StatusCode, res)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody wraps a coded error as a response envelope for failures that
// never reached the dispatcher. Elapsed time is attached on every failure
// path, measured from request arrival.
func errorBody(err *envelope.Error, start time.Time) *envelope.Response {
	return &envelope.Response{
		StatusCode: err.StatusCode,
		ErrMessage: err.Message,
		Extra:      err.Extra,
		ElapsedMS:  time.Since(start).Milliseconds(),
	}
}
