package admin

import (
	handlershared "github.com/mlm-engine/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func respondCompensationError(c *gin.Context, err error, fallbackMsg string) {
	handlershared.RespondCompensationError(c, err, fallbackMsg)
}

func getActorID(c *gin.Context) (uint, bool) {
	return handlershared.GetActorID(c)
}

func parsePathUint(c *gin.Context, name string) (uint, bool) {
	return handlershared.ParseUintParam(c, name)
}
