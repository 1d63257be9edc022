package router

import (
	"net/http"

	"github.com/dropDatabas3/postmesh/internal/http/errors"
)

func notFound(w http.ResponseWriter, _ *http.Request) {
	errors.WriteError(w, errors.ErrNotFound)
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	errors.WriteError(w, errors.ErrMethodNotAllowed)
}
