package response

import (
	"net/http"

	"leasehub/pkg/errors"
	"leasehub/pkg/logger"
	"leasehub/pkg/pagination"

	"github.com/gin-gonic/gin"
)

// Response 统一返回格式
type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// ========== 基础返回方法 ==========

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// SuccessWithPage 分页成功返回
func SuccessWithPage(c *gin.Context, data interface{}, pageInfo *pagination.PageInfo) {
	c.JSON(http.StatusOK, gin.H{
		"code":      errors.CodeSuccess,
		"message":   "success",
		"data":      data,
		"page_info": pageInfo,
	})
}

// Error 通用错误返回
func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

// FromError 按引擎错误类别返回，重叠冲突附带冲突租约信息
func FromError(c *gin.Context, err error) {
	kind := errors.KindOf(err)
	if kind == errors.KindInternal {
		logger.GetLogger().WithError(err).Errorf("%s %s failed", c.Request.Method, c.FullPath())
	}

	resp := Response{
		Code:      kind.Code(),
		Message:   errors.MessageOf(err),
		ErrorKind: string(kind),
		Retryable: kind.Retryable(),
	}
	if conflict := errors.ConflictOf(err); conflict != nil {
		resp.Data = conflict
	}
	c.JSON(http.StatusOK, resp)
}

// ========== HTTP错误快捷方法 ==========

func BadRequest(c *gin.Context, message string) {
	Error(c, errors.CodeInvalidParam, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, errors.CodeUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, errors.CodeForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, errors.CodeNotFound, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, errors.CodeServerError, message)
}
