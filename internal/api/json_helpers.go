package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

func errMethodNotAllowed(method string) error {
	return fmt.Errorf("method %s not allowed", method)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError emits the status code with a short plain-text diagnostic.
func writeError(w http.ResponseWriter, status int, err error) {
	http.Error(w, err.Error(), status)
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}
