// Package reqparse reads path parameters, query strings and JSON bodies for
// the API handlers. Every failure is an apperr validation error.
package reqparse

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/flathub/internal/domain/apperr"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 64 << 10

// PathID parses the chi URL parameter key as an ObjectID.
func PathID(r *http.Request, key string) (primitive.ObjectID, error) {
	raw := chi.URLParam(r, key)
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("reqparse.PathID", "invalid %s %q", key, raw)
	}
	return id, nil
}

// Limit reads the "limit" query parameter. Missing means def; values are
// capped at max.
func Limit(r *http.Request, def, max int64) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		return 0, apperr.Validation("reqparse.Limit", "limit must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

// Bool reads a boolean query parameter ("true", "1", "false", "0").
// Missing means false.
func Bool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.Validation("reqparse.Bool", "%s must be true or false", key)
	}
	return b, nil
}

// JSON decodes the request body into v. Unknown fields are rejected.
func JSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("reqparse.JSON", "request body is required")
		}
		return apperr.Validation("reqparse.JSON", "invalid JSON body: %v", err)
	}
	return nil
}
