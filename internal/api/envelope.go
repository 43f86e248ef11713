package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
)

// EnvelopeVersion is the response envelope format version.
const EnvelopeVersion = 1

// APIEnvelope wraps every successful response and plain errors.
type APIEnvelope struct { //nolint:revive // API prefix is intentional for clarity
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// APIErrorEnvelope wraps errors that carry details.
type APIErrorEnvelope struct { //nolint:revive // API prefix is intentional for clarity
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// EnvelopeTransformer is a huma.Transformer that wraps response bodies.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	code, _ := strconv.Atoi(status) //nolint:errcheck // huma always passes a numeric status
	if code < http.StatusBadRequest {
		return APIEnvelope{Version: EnvelopeVersion, Success: true, Data: v}, nil
	}

	switch e := v.(type) {
	case *APIError:
		if e.Details != nil {
			return APIErrorEnvelope{
				Version: EnvelopeVersion,
				Code:    e.Code,
				Message: e.Message,
				Details: e.Details,
			}, nil
		}
		return APIEnvelope{Version: EnvelopeVersion, Error: e.Message}, nil
	case error:
		return APIEnvelope{Version: EnvelopeVersion, Error: e.Error()}, nil
	default:
		return APIEnvelope{Version: EnvelopeVersion, Data: v}, nil
	}
}

// writeEnvelope writes an error envelope outside of huma, for middleware.
func writeEnvelope(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIEnvelope{Version: EnvelopeVersion, Error: message}) //nolint:errcheck // client went away
}
