package public

import (
	"github.com/mlm-engine/internal/constants"
	handlershared "github.com/mlm-engine/internal/http/handlers/shared"
	"github.com/mlm-engine/internal/http/response"

	"github.com/gin-gonic/gin"
)

func getActorID(c *gin.Context) (uint, bool) {
	return handlershared.GetActorID(c)
}

// resolveSelfParticipant 路径中的会员必须是调用方本人（管理角色除外）
func resolveSelfParticipant(c *gin.Context) (uint, bool) {
	actorID, ok := getActorID(c)
	if !ok {
		return 0, false
	}
	participantID, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return 0, false
	}
	if participantID != actorID && handlershared.ActorRole(c) != constants.ParticipantRoleAdmin {
		handlershared.RespondError(c, response.CodeForbidden, "forbidden", nil)
		return 0, false
	}
	return participantID, true
}
