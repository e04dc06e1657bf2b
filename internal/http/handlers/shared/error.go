package shared

import (
	"github.com/mlm-engine/internal/http/response"
	"github.com/mlm-engine/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get(response.RequestIDKey); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志（5xx 记 error，其余记 warn）。
func RespondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		log := RequestLog(c)
		fields := []interface{}{
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		}
		if appErr.Code >= response.CodeInternal {
			log.Errorw("handler_error", fields...)
		} else {
			log.Warnw("handler_rejected", fields...)
		}
	}
	response.ErrorFrom(c, appErr)
}
