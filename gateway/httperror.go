package gateway

import (
	"net/http"

	"github.com/dweb-gateway/dwebgateway/internal/errors"
)

// statusForKind maps an internal/errors.Kind onto the HTTP status
// spec.md §7 assigns it: malformed input is a client error, a missing
// name/version/path is 404, a name conflict is a 400 (the caller asked
// for something that can't be granted, not a server fault), an
// upstream storage failure is 502 (PortRegistry reports a failed port
// allocation as Kind IO, so that is 502 too), and Kind Resource is 503.
func statusForKind(k errors.Kind) int {
	switch k {
	case errors.Invalid:
		return http.StatusBadRequest
	case errors.NotExist:
		return http.StatusNotFound
	case errors.Exist:
		return http.StatusBadRequest
	case errors.IO:
		return http.StatusBadGateway
	case errors.Resource:
		return http.StatusServiceUnavailable
	case errors.Permission:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to its HTTP status and writes a plain-text body.
// Callers that want the underlying cause recorded should log err
// themselves before calling this.
func writeError(w http.ResponseWriter, err error) {
	status := statusForKind(errors.KindOf(err))
	http.Error(w, http.StatusText(status), status)
}
