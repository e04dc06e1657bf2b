package service

import (
	"context"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/models"
	"github.com/mlm-engine/internal/repository"

	"github.com/shopspring/decimal"
)

// BusinessInfo 会员左右区业绩
type BusinessInfo struct {
	ParticipantID     uint         `json:"participant_id"`
	LeftVolume        models.Money `json:"left_volume"`
	RightVolume       models.Money `json:"right_volume"`
	LeftCarryForward  models.Money `json:"left_carry_forward"`
	RightCarryForward models.Money `json:"right_carry_forward"`
	LeftTeamCount     int64        `json:"left_team_count"`
	RightTeamCount    int64        `json:"right_team_count"`
}

// teamVolume 汇总会员集合已计奖套餐的业绩，无套餐视为 0
func (s *CompensationService) teamVolume(repo repository.LedgerRepository, participantIDs []uint) (decimal.Decimal, error) {
	total := decimal.Zero
	if len(participantIDs) == 0 {
		return total, nil
	}
	packages, err := repo.ListCompensatedPackagesByOwners(participantIDs)
	if err != nil {
		return decimal.Zero, err
	}
	for i := range packages {
		total = total.Add(s.setting.PackageVolume(&packages[i]))
	}
	return total.Round(2), nil
}

// TeamVolume 汇总会员集合的业绩
func (s *CompensationService) TeamVolume(ctx context.Context, participantIDs []uint) (decimal.Decimal, error) {
	return s.teamVolume(s.repo, participantIDs)
}

// GetBusinessInfo 获取会员左右区业绩与结转
func (s *CompensationService) GetBusinessInfo(ctx context.Context, participantID uint) (*BusinessInfo, error) {
	participant, err := s.repo.GetParticipantByID(participantID)
	if err != nil {
		return nil, err
	}
	if participant == nil {
		return nil, ErrParticipantNotFound
	}

	leftNodes, err := walkSide(s.repo, participantID, constants.SideLeft, 0)
	if err != nil {
		return nil, err
	}
	rightNodes, err := walkSide(s.repo, participantID, constants.SideRight, 0)
	if err != nil {
		return nil, err
	}
	leftVolume, err := s.teamVolume(s.repo, nodeIDs(leftNodes))
	if err != nil {
		return nil, err
	}
	rightVolume, err := s.teamVolume(s.repo, nodeIDs(rightNodes))
	if err != nil {
		return nil, err
	}

	return &BusinessInfo{
		ParticipantID:     participant.ID,
		LeftVolume:        models.NewMoneyFromDecimal(leftVolume),
		RightVolume:       models.NewMoneyFromDecimal(rightVolume),
		LeftCarryForward:  participant.LeftCarryForward,
		RightCarryForward: participant.RightCarryForward,
		LeftTeamCount:     participant.LeftTeamCount,
		RightTeamCount:    participant.RightTeamCount,
	}, nil
}
