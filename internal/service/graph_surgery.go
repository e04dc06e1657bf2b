package service

import (
	"context"
	"fmt"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/models"
)

// RemovalResult 删除会员结果
type RemovalResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Reassigned []uint `json:"reassigned"`
	Orphaned   []uint `json:"orphaned"`
}

// RemoveParticipant 管理员删除会员并重新安置其下线
// 左子节点（无左子节点时取右子节点）顶替被删会员的位置并保留自身子树，另一子节点挂到顶替者同侧外侧腿的空位。
// 被删会员为根节点时，其子节点变为待人工挂接的孤立节点。
func (s *CompensationService) RemoveParticipant(ctx context.Context, participantID, actorID uint) (*RemovalResult, error) {
	if actorID == 0 {
		return nil, ErrActorRequired
	}
	var result *RemovalResult
	err := s.withRetry(ctx, "remove_participant", func() error {
		return s.runInTreeTx(ctx, treeExclusive, func(etx *engineTx) error {
			var err error
			result, err = s.removeParticipant(etx, participantID, actorID)
			return err
		})
	})
	if err != nil {
		logger.ForParticipant(participantID).Warnw("participant_remove_failed",
			"actor_id", actorID,
			"error", err,
		)
		return nil, err
	}
	logger.ForParticipant(participantID).Infow("participant_removed",
		"actor_id", actorID,
		"reassigned", result.Reassigned,
		"orphaned", result.Orphaned,
	)
	return result, nil
}

func (s *CompensationService) removeParticipant(etx *engineTx, participantID, actorID uint) (*RemovalResult, error) {
	target, err := etx.lockParticipant(participantID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrParticipantNotFound
	}
	if target.IsAdmin() {
		return nil, ErrParticipantProtected
	}

	edge, err := etx.repo.GetEdge(participantID)
	if err != nil {
		return nil, err
	}
	leftNodes, err := walkSide(etx.repo, participantID, constants.SideLeft, 0)
	if err != nil {
		return nil, err
	}
	rightNodes, err := walkSide(etx.repo, participantID, constants.SideRight, 0)
	if err != nil {
		return nil, err
	}
	children, err := etx.repo.ListChildEdges(participantID)
	if err != nil {
		return nil, err
	}
	var leftChild, rightChild *models.PlacementEdge
	for i := range children {
		switch children[i].Side {
		case constants.SideLeft:
			leftChild = &children[i]
		case constants.SideRight:
			rightChild = &children[i]
		}
	}

	result := &RemovalResult{Success: true, Reassigned: []uint{}, Orphaned: []uint{}}
	var recountStart uint
	if edge != nil && edge.ParentID != nil {
		formerParentID := *edge.ParentID
		if err := etx.locks.acquire(formerParentID); err != nil {
			return nil, err
		}
		recountStart = formerParentID

		promoted, other := leftChild, rightChild
		if promoted == nil {
			promoted, other = rightChild, nil
		}
		if promoted != nil {
			if err := etx.locks.acquire(promoted.ParticipantID); err != nil {
				return nil, err
			}
			promoted.ParentID = &formerParentID
			promoted.Side = edge.Side
			promoted.Level = edge.Level
			promoted.Orphaned = false
			if err := etx.repo.UpdateEdge(promoted); err != nil {
				return nil, err
			}
			result.Reassigned = append(result.Reassigned, promoted.ParticipantID)
			recountStart = promoted.ParticipantID

			if other != nil {
				slotParentID, slotLevel, err := s.findFreeSlot(etx, promoted.ParticipantID, other.Side)
				if err != nil {
					return nil, err
				}
				other.ParentID = &slotParentID
				other.Level = slotLevel + 1
				if err := etx.repo.UpdateEdge(other); err != nil {
					return nil, err
				}
				result.Reassigned = append(result.Reassigned, other.ParticipantID)
				recountStart = slotParentID
			}
			if err := s.relevelSubtree(etx, promoted.ParticipantID, promoted.Level); err != nil {
				return nil, err
			}
		}
	} else {
		for _, child := range []*models.PlacementEdge{leftChild, rightChild} {
			if child == nil {
				continue
			}
			child.ParentID = nil
			child.Orphaned = true
			child.Level = 0
			if err := etx.repo.UpdateEdge(child); err != nil {
				return nil, err
			}
			if err := s.relevelSubtree(etx, child.ParticipantID, 0); err != nil {
				return nil, err
			}
			result.Orphaned = append(result.Orphaned, child.ParticipantID)
		}
	}

	if err := s.archiveParticipantRecords(etx, participantID); err != nil {
		return nil, err
	}
	cleared, err := etx.repo.ClearReferrer(participantID, etx.now)
	if err != nil {
		return nil, err
	}
	if err := etx.repo.DeleteEdge(participantID); err != nil {
		return nil, err
	}
	if err := etx.repo.RemoveParticipant(participantID, actorID, etx.now); err != nil {
		return nil, err
	}

	targets := make([]uint, 0)
	if recountStart != 0 {
		targets = append(targets, recountStart)
		hops, err := walkUpline(etx.repo, recountStart, 0)
		if err != nil {
			return nil, err
		}
		for _, hop := range hops {
			targets = append(targets, hop.AncestorID)
		}
	}
	if target.ReferredBy != nil {
		targets = append(targets, *target.ReferredBy)
	}
	seen := make(map[uint]struct{}, len(targets))
	for _, id := range targets {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := s.recountParticipant(etx, id); err != nil {
			return nil, err
		}
	}

	result.Message = fmt.Sprintf("会员 %d 已删除：左区 %d 人、右区 %d 人，重新安置 %d 个节点，孤立 %d 个节点，清除 %d 条推荐关系",
		participantID, len(leftNodes), len(rightNodes), len(result.Reassigned), len(result.Orphaned), len(cleared))
	return result, nil
}

// relevelSubtree 重算子树内每条安置关系的深度
func (s *CompensationService) relevelSubtree(etx *engineTx, rootID uint, rootLevel int) error {
	nodes, err := walkSubtree(etx.repo, rootID)
	if err != nil {
		return err
	}
	for _, node := range nodes {
		edge, err := etx.repo.GetEdge(node.ID)
		if err != nil {
			return err
		}
		if edge == nil {
			continue
		}
		level := rootLevel + node.Depth
		if edge.Level == level {
			continue
		}
		edge.Level = level
		if err := etx.repo.UpdateEdge(edge); err != nil {
			return err
		}
	}
	return nil
}

// archiveParticipantRecords 归档被删会员的套餐、收益、流水与提现，保留审计数据
func (s *CompensationService) archiveParticipantRecords(etx *engineTx, participantID uint) error {
	packages, err := etx.repo.ArchivePackagesByOwner(participantID, etx.now)
	if err != nil {
		return err
	}
	earnings, err := etx.repo.ArchiveEarningsByBeneficiary(participantID, etx.now)
	if err != nil {
		return err
	}
	transactions, err := etx.repo.ArchiveTransactionsByParticipant(participantID, etx.now)
	if err != nil {
		return err
	}
	withdrawals, err := etx.repo.ArchiveWithdrawalsByParticipant(participantID, etx.now)
	if err != nil {
		return err
	}
	logger.ForParticipant(participantID).Infow("participant_records_archived",
		"packages", packages,
		"earnings", earnings,
		"transactions", transactions,
		"withdrawals", withdrawals,
	)
	return nil
}
