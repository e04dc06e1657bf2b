package service

import (
	"context"
	"fmt"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/models"

	"github.com/shopspring/decimal"
)

// MatchInput 对碰计算输入
type MatchInput struct {
	LeftCarry  decimal.Decimal
	RightCarry decimal.Decimal
	LeftCount  int64
	RightCount int64
	FirstMatch bool // 该会员尚无有效对碰收益
}

// MatchResult 对碰结果，MatchedLeft/MatchedRight 为两侧各自消耗的业绩
type MatchResult struct {
	Fired        bool            `json:"fired"`
	MatchedLeft  decimal.Decimal `json:"matched_left"`
	MatchedRight decimal.Decimal `json:"matched_right"`
	Income       decimal.Decimal `json:"income"`
}

// MatchedVolume 本次对碰消耗的总业绩
func (r MatchResult) MatchedVolume() decimal.Decimal {
	return r.MatchedLeft.Add(r.MatchedRight)
}

// MatchingPolicy 对碰规则
type MatchingPolicy interface {
	Name() string
	Evaluate(input MatchInput, rate decimal.Decimal) MatchResult
}

// NewMatchingPolicy 按名称创建对碰规则
func NewMatchingPolicy(name string) (MatchingPolicy, error) {
	switch name {
	case constants.MatchingPolicyPairMin:
		return pairMinPolicy{}, nil
	case constants.MatchingPolicyMinDouble:
		return minDoublePolicy{}, nil
	case constants.MatchingPolicyWeakerSide2To1:
		return weakerSidePolicy{}, nil
	default:
		return nil, fmt.Errorf("%w: 未知的对碰策略 %s", ErrCompensationConfigInvalid, name)
	}
}

// pairMinPolicy 两侧均有结转即对碰，各消耗较小一侧的业绩
type pairMinPolicy struct{}

func (pairMinPolicy) Name() string { return constants.MatchingPolicyPairMin }

func (pairMinPolicy) Evaluate(input MatchInput, rate decimal.Decimal) MatchResult {
	paired := decimal.Min(input.LeftCarry, input.RightCarry)
	if !paired.IsPositive() {
		return MatchResult{}
	}
	return MatchResult{
		Fired:        true,
		MatchedLeft:  paired,
		MatchedRight: paired,
		Income:       paired.Mul(rate).Round(2),
	}
}

// minDoublePolicy 在 pair_min 基础上要求大侧至少为小侧两倍
type minDoublePolicy struct{}

func (minDoublePolicy) Name() string { return constants.MatchingPolicyMinDouble }

func (minDoublePolicy) Evaluate(input MatchInput, rate decimal.Decimal) MatchResult {
	paired := decimal.Min(input.LeftCarry, input.RightCarry)
	larger := decimal.Max(input.LeftCarry, input.RightCarry)
	if !paired.IsPositive() || larger.LessThan(paired.Mul(decimal.NewFromInt(2))) {
		return MatchResult{}
	}
	return pairMinPolicy{}.Evaluate(input, rate)
}

// weakerSidePolicy 首次对碰要求一侧人数至少为另一侧两倍，按 2:1 消耗；之后同 pair_min
type weakerSidePolicy struct{}

func (weakerSidePolicy) Name() string { return constants.MatchingPolicyWeakerSide2To1 }

func (weakerSidePolicy) Evaluate(input MatchInput, rate decimal.Decimal) MatchResult {
	if !input.FirstMatch {
		return pairMinPolicy{}.Evaluate(input, rate)
	}

	var weakerIsLeft bool
	switch {
	case input.RightCount > 0 && input.LeftCount >= 2*input.RightCount:
		weakerIsLeft = false
	case input.LeftCount > 0 && input.RightCount >= 2*input.LeftCount:
		weakerIsLeft = true
	default:
		return MatchResult{}
	}

	weaker, stronger := input.RightCarry, input.LeftCarry
	if weakerIsLeft {
		weaker, stronger = input.LeftCarry, input.RightCarry
	}
	if !weaker.IsPositive() || !stronger.IsPositive() {
		return MatchResult{}
	}
	strongerUsed := decimal.Min(weaker.Mul(decimal.NewFromInt(2)), stronger)

	result := MatchResult{
		Fired:  true,
		Income: weaker.Mul(rate).Round(2),
	}
	if weakerIsLeft {
		result.MatchedLeft, result.MatchedRight = weaker, strongerUsed
	} else {
		result.MatchedLeft, result.MatchedRight = strongerUsed, weaker
	}
	return result
}

// applyNewBusiness 给祖先某一侧计入新业绩并尝试对碰
// 祖先不存在时仅记录日志，保证向上传递不被残缺数据中断。
func (s *CompensationService) applyNewBusiness(etx *engineTx, participantID uint, side string, amount decimal.Decimal, sourceID uint, packageID *uint) (MatchResult, error) {
	if amount.IsNegative() {
		return MatchResult{}, fmt.Errorf("%w: new business %s", ErrInvalidAmount, amount.String())
	}
	side, err := normalizeSide(side)
	if err != nil {
		return MatchResult{}, err
	}

	reference := ""
	if packageID != nil {
		reference = packageReference(*packageID, constants.EarningTypeBinary, participantID)
		existing, err := etx.repo.GetEarningByReference(reference)
		if err != nil {
			return MatchResult{}, err
		}
		if existing != nil {
			return MatchResult{}, nil
		}
	}

	participant, err := etx.lockParticipant(participantID)
	if err != nil {
		return MatchResult{}, err
	}
	if participant == nil {
		logger.Warnw("binary_ancestor_missing",
			"participant_id", participantID,
			"source_participant_id", sourceID,
			"amount", amount.StringFixed(2),
		)
		return MatchResult{}, nil
	}

	volume := models.NewMoneyFromDecimal(amount)
	if side == constants.SideLeft {
		participant.LeftCarryForward = participant.LeftCarryForward.Add(volume)
	} else {
		participant.RightCarryForward = participant.RightCarryForward.Add(volume)
	}

	hasBinary, err := etx.repo.HasEarningOfType(participant.ID, constants.EarningTypeBinary)
	if err != nil {
		return MatchResult{}, err
	}
	result := s.policy.Evaluate(MatchInput{
		LeftCarry:  participant.LeftCarryForward.Decimal,
		RightCarry: participant.RightCarryForward.Decimal,
		LeftCount:  participant.LeftTeamCount,
		RightCount: participant.RightTeamCount,
		FirstMatch: !hasBinary,
	}, s.setting.MatchingRate())

	if !result.Fired {
		if err := etx.repo.UpdateParticipant(participant); err != nil {
			return MatchResult{}, err
		}
		return result, nil
	}

	participant.LeftCarryForward = participant.LeftCarryForward.SubFloorZero(models.NewMoneyFromDecimal(result.MatchedLeft))
	participant.RightCarryForward = participant.RightCarryForward.SubFloorZero(models.NewMoneyFromDecimal(result.MatchedRight))

	related := sourceID
	if _, err := s.creditEarning(etx, participant, earningDraft{
		Type:         constants.EarningTypeBinary,
		Amount:       result.Income,
		RelatedID:    &related,
		PackageID:    packageID,
		MatchedLeft:  result.MatchedLeft,
		MatchedRight: result.MatchedRight,
		Reference:    reference,
		Description: fmt.Sprintf("对碰奖 %s：左区消耗 %s，右区消耗 %s",
			s.policy.Name(), result.MatchedLeft.StringFixed(2), result.MatchedRight.StringFixed(2)),
	}); err != nil {
		return MatchResult{}, err
	}
	s.observer.BinaryMatched(s.policy.Name(), result.MatchedVolume())
	return result, nil
}

// propagateBinary 从来源会员的安置父节点开始逐跳向上计入业绩
func (s *CompensationService) propagateBinary(etx *engineTx, sourceID uint, amount decimal.Decimal, packageID *uint) (int, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("%w: propagation %s", ErrInvalidAmount, amount.String())
	}
	hops, err := walkUpline(etx.repo, sourceID, s.setting.PropagationDepth)
	if err != nil {
		return 0, err
	}
	matches := 0
	for _, hop := range hops {
		result, err := s.applyNewBusiness(etx, hop.AncestorID, hop.Side, amount, sourceID, packageID)
		if err != nil {
			return matches, err
		}
		if result.Fired {
			matches++
		}
	}
	return matches, nil
}

// ApplyNewBusiness 将来源会员产生的业绩计入指定祖先
func (s *CompensationService) ApplyNewBusiness(ctx context.Context, participantID uint, amount decimal.Decimal, sourceID uint) (MatchResult, error) {
	if amount.IsNegative() {
		return MatchResult{}, ErrInvalidAmount
	}
	var result MatchResult
	err := s.withRetry(ctx, "apply_new_business", func() error {
		return s.runInTreeTx(ctx, treeShared, func(etx *engineTx) error {
			side, err := sideOf(etx.repo, participantID, sourceID)
			if err != nil {
				return err
			}
			result, err = s.applyNewBusiness(etx, participantID, side, amount, sourceID, nil)
			return err
		})
	})
	return result, err
}

// PropagateBinary 将来源会员产生的业绩沿安置链向上传递，返回触发对碰的次数
func (s *CompensationService) PropagateBinary(ctx context.Context, sourceID uint, amount decimal.Decimal) (int, error) {
	if amount.IsNegative() {
		return 0, ErrInvalidAmount
	}
	matches := 0
	err := s.withRetry(ctx, "propagate_binary", func() error {
		return s.runInTreeTx(ctx, treeShared, func(etx *engineTx) error {
			var err error
			matches, err = s.propagateBinary(etx, sourceID, amount, nil)
			return err
		})
	})
	return matches, err
}
