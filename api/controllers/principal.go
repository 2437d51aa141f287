package controllers

import (
	"net/http"

	"github.com/angelmondragon/rafflepot-backend/api/middleware"
	"github.com/angelmondragon/rafflepot-backend/api/responses"
	"github.com/angelmondragon/rafflepot-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/rafflepot-backend/pkg/errors"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
)

// requirePrincipal writes a 401 and returns false when the request carries
// no authenticated caller.
func requirePrincipal(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (auth.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || !principal.Valid() {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
		return auth.Principal{}, false
	}
	return principal, true
}

func serviceUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable"))
}
