package api

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in response bodies.
const (
	codeBadRequest          = "bad_request"
	codeUnsupportedMedia    = "unsupported_media"
	codeInvalidJSON         = "invalid_json"
	codeMissingText         = "missing_text"
	codeMissingSource       = "missing_source"
	codeNotFound            = "not_found"
	codeUnauthorized        = "unauthorized"
	codeInternal            = "internal_error"
	codeWorkflowStartFailed = "workflow_start_failed"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type statusBody struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errchkjson // nothing to do once the header is out
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	if code == "" {
		code = codeBadRequest
	}

	writeJSON(w, status, errorBody{Error: msg, Code: code})
}
