package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindSlotConflict:
		return http.StatusConflict
	case KindUpstreamFailure:
		return http.StatusBadGateway
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error  string            `json:"error"`
	Kind   Kind              `json:"kind"`
	Fields map[string]string `json:"fields,omitempty"`
}

// WriteHTTP writes err as a JSON error response. Internal errors are not
// echoed to the client.
func WriteHTTP(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	body := errorBody{Kind: KindOf(err), Fields: FieldsOf(err)}
	var appErr *Error
	switch {
	case status == http.StatusInternalServerError:
		body.Error = "internal error"
	case errors.As(err, &appErr):
		body.Error = appErr.Message
	default:
		body.Error = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
