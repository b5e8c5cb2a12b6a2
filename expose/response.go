package expose

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/streamkit/errors"
)

// DataResponse is the success envelope of the HTTP endpoints. ID is the
// correlation id of a request, empty for listings.
type DataResponse struct {
	ID   string `json:"id,omitempty"`
	Data any    `json:"data"`
}

// RouteInfo describes a mounted route in GET /streams.
type RouteInfo struct {
	Name      string `json:"name"`
	Cached    bool   `json:"cached"`
	Retained  int    `json:"retained,omitempty"`
	Listeners int    `json:"listeners"`
}

// respondError writes err as an ErrorResponse. Errors that are not an
// AppError are reported as INTERNAL_ERROR.
func respondError(c *gin.Context, err error) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		appErr = errors.Internal(err)
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, appErr.ToResponse())
}

func respondOK(c *gin.Context, id string, data any) {
	c.JSON(http.StatusOK, DataResponse{ID: id, Data: data})
}
