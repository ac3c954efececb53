package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                = 0
	CodeBadRequest        = 40000
	CodeUploadRejected    = 40001
	CodePaperNotFound     = 40401
	CodeNotFound          = 40404
	CodeSyncBusy          = 40901
	CodeVersionConflict   = 40902
	CodeNotConfigured     = 41201
	CodeInternalServer    = 50000
	CodeRemoteUnavailable = 50201
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
