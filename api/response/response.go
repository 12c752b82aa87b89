package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"contractx/types"
)

type Response struct {
	Code int         `json:"code"` // 0:成功，其余为 HTTP 状态码
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: 0,
		Msg:  "success",
		Data: data,
	})
}

// Fail 参数错误
func Fail(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Code: http.StatusBadRequest,
		Msg:  msg,
	})
}

// Error 按错误种类选择状态码
func Error(c *gin.Context, err error) {
	status := StatusOf(err)
	c.JSON(status, Response{
		Code: status,
		Msg:  err.Error(),
	})
}

func StatusOf(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, types.ErrIncompleteDocument), errors.Is(err, types.ErrInvalidContent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrRetrievalUnavailable), errors.Is(err, types.ErrCollaboratorUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
