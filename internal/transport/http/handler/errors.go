package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"literature-manager/internal/app"
	"literature-manager/internal/githubstore"
	"literature-manager/internal/syncer"
	"literature-manager/internal/transport/http/response"
)

// writeError maps service errors onto the response envelope. Unknown errors
// are logged and reported with the generic fallback message.
func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUploadRejected):
		response.Error(c, http.StatusBadRequest, response.CodeUploadRejected, err.Error())
	case bodyTooLarge(err):
		response.Error(c, http.StatusBadRequest, response.CodeUploadRejected, "request body too large")
	case errors.Is(err, app.ErrPaperNotFound):
		response.Error(c, http.StatusNotFound, response.CodePaperNotFound, err.Error())
	case errors.Is(err, syncer.ErrBusy):
		response.Error(c, http.StatusConflict, response.CodeSyncBusy, err.Error())
	case errors.Is(err, githubstore.ErrVersionConflict):
		response.Error(c, http.StatusConflict, response.CodeVersionConflict, err.Error())
	case errors.Is(err, app.ErrSyncNotConfigured),
		errors.Is(err, app.ErrActivityDisabled),
		errors.Is(err, syncer.ErrNotConfigured),
		errors.Is(err, githubstore.ErrNotConfigured):
		response.Error(c, http.StatusPreconditionFailed, response.CodeNotConfigured, err.Error())
	case errors.Is(err, githubstore.ErrRemoteUnavailable),
		errors.Is(err, githubstore.ErrRateLimited),
		errors.Is(err, githubstore.ErrUnauthorized):
		response.Error(c, http.StatusBadGateway, response.CodeRemoteUnavailable, err.Error())
	default:
		_ = c.Error(err)
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg(fallback)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
