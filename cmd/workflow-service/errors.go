package main

import (
	"net/http"

	svcerrors "github.com/R3E-Network/service_layer/infrastructure/errors"
	"github.com/R3E-Network/service_layer/infrastructure/httputil"
)

// writeServiceError maps a domain error — almost always an
// *svcerrors.ServiceError — to its JSON response, falling back to a generic
// 500 for anything this service didn't itself construct.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	se := svcerrors.GetServiceError(err)
	if se == nil {
		se = svcerrors.Internal("internal server error", err)
	}
	httputil.WriteErrorResponse(w, r, se.HTTPStatus, string(se.Code), se.Message, se.Details)
}
