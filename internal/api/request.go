package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/jobgate/jobgate/internal/envelope"
)

// maxBodyBytes caps inbound request bodies. Jobs cross the queue boundary as
// serialized values, so oversized payloads are rejected at ingress.
const maxBodyBytes = 4 << 20

// toEnvelope converts an inbound HTTP request into the request envelope
// submitted as job data.
func toEnvelope(r *http.Request) (*envelope.Request, error) {
	req := &envelope.Request{
		Method:  r.Method,
		URL:     r.URL.Path,
		Headers: envelope.Headers(r.Header.Clone()),
	}

	if q := r.URL.Query(); len(q) > 0 {
		req.Query = make(map[string]string, len(q))
		for k := range q {
			req.Query[k] = q.Get(k)
		}
	}

	// The body only travels on write methods; content on a read is ignored.
	if !req.IsWrite() || r.Body == nil || r.ContentLength == 0 {
		return req, nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, envelope.BadRequest("read request body: %v", err)
	}
	if len(body) > maxBodyBytes {
		return nil, envelope.BadRequest("request body exceeds %d bytes", maxBodyBytes)
	}
	if len(body) > 0 {
		if !json.Valid(body) {
			return nil, envelope.BadRequest("request body must be valid JSON")
		}
		req.Body = json.RawMessage(body)
	}
	return req, nil
}
