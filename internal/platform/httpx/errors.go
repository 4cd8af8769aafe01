package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
)

// Classify maps an error chain onto a status code. Errors matching none of
// the given sentinels are internal.
func Classify(err error, notFound, validation []error) int {
	for _, target := range append([]error{ErrNotFound}, notFound...) {
		if errors.Is(err, target) {
			return http.StatusNotFound
		}
	}
	for _, target := range append([]error{ErrValidation}, validation...) {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}
