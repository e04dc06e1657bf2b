package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/models"
)

// EnrollInput 会员注册参数
type EnrollInput struct {
	Name        string        `json:"name"`
	SponsorCode string        `json:"sponsor_code"`
	Side        string        `json:"side"`
	Package     *PackageInput `json:"package"`
}

// EnrollResult 注册结果
type EnrollResult struct {
	Participant *models.Participant   `json:"participant"`
	Edge        *models.PlacementEdge `json:"edge"`
	Package     *models.Package       `json:"package,omitempty"`
}

// CreateRoot 创建无推荐人、无安置父节点的根会员
func (s *CompensationService) CreateRoot(ctx context.Context, name string) (*models.Participant, error) {
	name = strings.TrimSpace(name)
	var created *models.Participant
	err := s.runInTreeTx(ctx, treeShared, func(etx *engineTx) error {
		code, err := s.newReferralCode(etx.repo)
		if err != nil {
			return err
		}
		participant := &models.Participant{
			Name:         name,
			ReferralCode: code,
			Role:         constants.ParticipantRoleMember,
			Status:       constants.ParticipantStatusActive,
		}
		if err := etx.repo.CreateParticipant(participant); err != nil {
			return err
		}
		created = participant
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.ForParticipant(created.ID).Infow("root_participant_created", "referral_code", created.ReferralCode)
	return created, nil
}

// EnrollParticipant 注册会员：建立推荐关系、安置到推荐人指定侧、更新祖先人数并计算首单奖金
func (s *CompensationService) EnrollParticipant(ctx context.Context, input EnrollInput) (*EnrollResult, error) {
	side, err := normalizeSide(strings.ToLower(strings.TrimSpace(input.Side)))
	if err != nil {
		return nil, err
	}
	if input.Package != nil {
		if err := input.Package.validate(); err != nil {
			return nil, err
		}
	}

	var result *EnrollResult
	err = s.withRetry(ctx, "enroll_participant", func() error {
		return s.runInTreeTx(ctx, treeShared, func(etx *engineTx) error {
			var err error
			result, err = s.enroll(etx, strings.TrimSpace(input.Name), input.SponsorCode, side, input.Package)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	if result.Package != nil {
		if fresh, err := s.reloadPackage(result.Package); err == nil {
			result.Package = fresh
		}
	}
	logger.ForParticipant(result.Participant.ID).Infow("participant_enrolled",
		"sponsor_id", *result.Participant.ReferredBy,
		"parent_id", *result.Edge.ParentID,
		"side", result.Edge.Side,
		"level", result.Edge.Level,
	)
	return result, nil
}

func (s *CompensationService) enroll(etx *engineTx, name, sponsorCode, side string, pkgInput *PackageInput) (*EnrollResult, error) {
	sponsor, err := etx.repo.GetParticipantByCode(sponsorCode)
	if err != nil {
		return nil, err
	}
	if sponsor == nil {
		return nil, ErrSponsorNotFound
	}

	code, err := s.newReferralCode(etx.repo)
	if err != nil {
		return nil, err
	}
	sponsorID := sponsor.ID
	participant := &models.Participant{
		Name:         name,
		ReferralCode: code,
		ReferredBy:   &sponsorID,
		Role:         constants.ParticipantRoleMember,
		Status:       constants.ParticipantStatusActive,
	}
	if err := etx.repo.CreateParticipant(participant); err != nil {
		return nil, err
	}

	parentID, parentLevel, err := s.findFreeSlot(etx, sponsor.ID, side)
	if err != nil {
		return nil, err
	}
	edge := &models.PlacementEdge{
		ParticipantID: participant.ID,
		ParentID:      &parentID,
		Side:          side,
		Level:         parentLevel + 1,
	}
	if err := etx.repo.CreateEdge(edge); err != nil {
		return nil, err
	}
	if err := s.incrementTeamCounts(etx, participant.ID); err != nil {
		return nil, err
	}
	if err := s.refreshUnlockedLevels(etx, sponsor.ID); err != nil {
		return nil, err
	}

	result := &EnrollResult{Participant: participant, Edge: edge}
	if pkgInput != nil {
		pkg := pkgInput.toModel(participant.ID)
		if err := etx.repo.CreatePackage(pkg); err != nil {
			return nil, err
		}
		if err := s.compensatePackage(etx, participant.ID, pkg.ID); err != nil {
			return nil, err
		}
		result.Package = pkg
	}
	return result, nil
}

// findFreeSlot 从 startID 沿指定侧的外侧腿向下寻找空位，返回父节点及其深度
// 经过的节点均加锁，防止并发注册占用同一空位。
func (s *CompensationService) findFreeSlot(etx *engineTx, startID uint, side string) (uint, int, error) {
	visited := map[uint]struct{}{}
	current := startID
	for {
		if _, seen := visited[current]; seen {
			return 0, 0, fmt.Errorf("%w: outer leg revisits %d", ErrStructuralCycle, current)
		}
		visited[current] = struct{}{}

		if err := etx.locks.acquire(current); err != nil {
			return 0, 0, err
		}
		children, err := etx.repo.ListChildEdges(current)
		if err != nil {
			return 0, 0, err
		}
		var next *models.PlacementEdge
		for i := range children {
			if children[i].Side == side {
				next = &children[i]
				break
			}
		}
		if next == nil {
			level := 0
			edge, err := etx.repo.GetEdge(current)
			if err != nil {
				return 0, 0, err
			}
			if edge != nil {
				level = edge.Level
			}
			return current, level, nil
		}
		current = next.ParticipantID
	}
}

// incrementTeamCounts 新会员入树后，所有安置祖先对应侧人数加一
func (s *CompensationService) incrementTeamCounts(etx *engineTx, participantID uint) error {
	hops, err := walkUpline(etx.repo, participantID, 0)
	if err != nil {
		return err
	}
	for _, hop := range hops {
		ancestor, err := etx.lockParticipant(hop.AncestorID)
		if err != nil {
			return err
		}
		if ancestor == nil {
			continue
		}
		if hop.Side == constants.SideLeft {
			ancestor.LeftTeamCount++
		} else {
			ancestor.RightTeamCount++
		}
		if err := etx.repo.UpdateParticipant(ancestor); err != nil {
			return err
		}
	}
	return nil
}

// refreshUnlockedLevels 按直推人数刷新解锁层级，管理员手动设置的除外
func (s *CompensationService) refreshUnlockedLevels(etx *engineTx, participantID uint) error {
	participant, err := etx.lockParticipant(participantID)
	if err != nil {
		return err
	}
	if participant == nil || participant.LevelsOverridden {
		return nil
	}
	directs, err := etx.repo.CountDirectReferrals(participant.ID)
	if err != nil {
		return err
	}
	levels := unlockedLevelsFor(directs)
	if participant.UnlockedLevels == levels {
		return nil
	}
	participant.UnlockedLevels = levels
	return etx.repo.UpdateParticipant(participant)
}
