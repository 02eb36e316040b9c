package pdf

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RespondWithError はエラーをHTTPレスポンスへ変換します。
func RespondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		c.JSON(statusForCode(apiErr.Code), gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func statusForCode(code string) int {
	switch code {
	case CodeValidation, CodeInvalidRange, CodeInvalidOption, CodeDocumentInvalid:
		return http.StatusBadRequest
	case CodeNotFound, CodeOutOfRange:
		return http.StatusNotFound
	case CodeNotReady:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
