package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"verixiv/internal/pdftext"
	"verixiv/internal/rubric"
	"verixiv/internal/scoring"
	"verixiv/internal/util"
)

// userError carries a message that is safe to show the caller verbatim.
type userError string

func (e userError) Error() string { return string(e) }

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

// statusFor maps a scoring failure to the HTTP status it is reported with.
func statusFor(err error) int {
	var missing *rubric.MissingFieldError
	var invalid *rubric.InvalidValueError
	switch {
	case errors.As(err, &missing), errors.As(err, &invalid),
		errors.Is(err, scoring.ErrNoPagesScored), errors.Is(err, util.ErrNoExtractableText):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pdftext.ErrDownload),
		errors.Is(err, util.ErrQuotaExhausted), errors.Is(err, util.ErrRateLimited),
		errors.Is(err, util.ErrTransient), errors.Is(err, util.ErrPermanent),
		errors.Is(err, util.ErrContextTooLong):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func toAPIError(status int, err error) apiError {
	switch status {
	case http.StatusBadRequest:
		msg := "Invalid request. Check inputs and retry."
		var ue userError
		if errors.As(err, &ue) {
			msg = string(ue)
		}
		return apiError{Code: "VX-API-4001", Message: msg}
	case http.StatusNotFound:
		return apiError{Code: "VX-API-4004", Message: "Requested resource was not found."}
	case http.StatusMethodNotAllowed:
		return apiError{Code: "VX-API-4005", Message: "This endpoint does not support the requested method."}
	case http.StatusConflict:
		return apiError{Code: "VX-API-4009", Message: "A scoring job for this paper is already running."}
	case http.StatusUnprocessableEntity:
		var missing *rubric.MissingFieldError
		switch {
		case errors.Is(err, util.ErrNoExtractableText):
			return apiError{Code: "VX-API-4220", Message: "No extractable text found in the paper."}
		case errors.Is(err, scoring.ErrNoPagesScored):
			return apiError{Code: "VX-API-4220", Message: "No page of the paper could be scored."}
		case errors.As(err, &missing):
			return apiError{Code: "VX-API-4220", Message: "Graded rubric is missing field: " + missing.Field}
		}
		return apiError{Code: "VX-API-4220", Message: "Paper could not be scored."}
	case http.StatusBadGateway:
		if errors.Is(err, pdftext.ErrDownload) {
			return apiError{Code: "VX-API-5020", Message: "Failed to download PDF"}
		}
		return apiError{Code: "VX-API-5020", Message: "Upstream provider unavailable. Retry shortly."}
	case http.StatusServiceUnavailable:
		msg := "Service dependency is not configured."
		var ue userError
		if errors.As(err, &ue) {
			msg = string(ue)
		}
		return apiError{Code: "VX-API-5030", Message: msg}
	}
	return apiError{Code: "VX-API-5000", Message: "Internal server error. Please retry or check service logs."}
}
