package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/mlm-engine/internal/config"
	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/models"

	"github.com/shopspring/decimal"
)

const (
	compensationRateMin          = 0
	compensationRateMax          = 100
	compensationDepthMin         = 1
	compensationDepthMax         = 64
	defaultDirectRatePercent     = 5
	defaultPairMinRatePercent    = 10
	defaultWeakerSideRatePercent = 5
	defaultPropagationDepth      = constants.MaxUnlockedLevels
	defaultCompletionBonusRate   = 100
)

var defaultLevelPercents = []float64{
	15, 10, 5,
	3, 3, 3, 3, 3,
	2, 2, 2, 2, 2, 2,
	1, 1, 1, 1, 1, 1,
}

// CompensationSetting 奖金规则
type CompensationSetting struct {
	DirectRatePercent          float64   `json:"direct_rate_percent"`
	MatchingPolicy             string    `json:"matching_policy"`
	MatchingRatePercent        float64   `json:"matching_rate_percent"`
	VolumeBasis                string    `json:"volume_basis"`
	PropagationDepth           int       `json:"propagation_depth"`
	LevelPercents              []float64 `json:"level_percents"`
	AutoPoolThreshold          float64   `json:"auto_pool_threshold"`
	CompletionBonusRatePercent float64   `json:"completion_bonus_rate_percent"`
	MinWithdrawAmount          float64   `json:"min_withdraw_amount"`
	AsyncPurchase              bool      `json:"async_purchase"`
}

// CompensationDefaultSetting 默认奖金规则
func CompensationDefaultSetting() CompensationSetting {
	return NormalizeCompensationSetting(CompensationSetting{
		DirectRatePercent:          defaultDirectRatePercent,
		MatchingPolicy:             constants.MatchingPolicyPairMin,
		MatchingRatePercent:        defaultPairMinRatePercent,
		VolumeBasis:                constants.VolumeBasisMonthly,
		PropagationDepth:           defaultPropagationDepth,
		LevelPercents:              defaultLevelPercents,
		AutoPoolThreshold:          10000,
		CompletionBonusRatePercent: defaultCompletionBonusRate,
	})
}

// CompensationSettingFromConfig 从配置文件构建奖金规则
func CompensationSettingFromConfig(cfg config.CompensationConfig) CompensationSetting {
	return NormalizeCompensationSetting(CompensationSetting{
		DirectRatePercent:          cfg.DirectRatePercent,
		MatchingPolicy:             cfg.MatchingPolicy,
		MatchingRatePercent:        cfg.MatchingRatePercent,
		VolumeBasis:                cfg.VolumeBasis,
		PropagationDepth:           cfg.PropagationDepth,
		LevelPercents:              cfg.LevelPercents,
		AutoPoolThreshold:          cfg.AutoPoolThreshold,
		CompletionBonusRatePercent: cfg.CompletionBonusRatePercent,
		MinWithdrawAmount:          cfg.MinWithdrawAmount,
		AsyncPurchase:              cfg.AsyncPurchase,
	})
}

// NormalizeCompensationSetting 归一化奖金规则
func NormalizeCompensationSetting(setting CompensationSetting) CompensationSetting {
	setting.DirectRatePercent = clampPercent(setting.DirectRatePercent)

	setting.MatchingPolicy = strings.ToLower(strings.TrimSpace(setting.MatchingPolicy))
	if setting.MatchingPolicy == "" {
		setting.MatchingPolicy = constants.MatchingPolicyPairMin
	}
	setting.MatchingRatePercent = clampPercent(setting.MatchingRatePercent)
	if setting.MatchingRatePercent == 0 {
		if setting.MatchingPolicy == constants.MatchingPolicyWeakerSide2To1 {
			setting.MatchingRatePercent = defaultWeakerSideRatePercent
		} else {
			setting.MatchingRatePercent = defaultPairMinRatePercent
		}
	}

	setting.VolumeBasis = strings.ToLower(strings.TrimSpace(setting.VolumeBasis))
	if setting.VolumeBasis == "" {
		setting.VolumeBasis = constants.VolumeBasisMonthly
	}

	if setting.PropagationDepth <= 0 {
		setting.PropagationDepth = defaultPropagationDepth
	}
	if setting.PropagationDepth > compensationDepthMax {
		setting.PropagationDepth = compensationDepthMax
	}

	if len(setting.LevelPercents) == 0 {
		setting.LevelPercents = defaultLevelPercents
	}
	if len(setting.LevelPercents) > constants.MaxUnlockedLevels {
		setting.LevelPercents = setting.LevelPercents[:constants.MaxUnlockedLevels]
	}
	levels := make([]float64, len(setting.LevelPercents))
	for i, percent := range setting.LevelPercents {
		levels[i] = clampPercent(percent)
	}
	setting.LevelPercents = levels

	setting.AutoPoolThreshold = roundCompensationDecimal(setting.AutoPoolThreshold)
	if setting.AutoPoolThreshold < 0 {
		setting.AutoPoolThreshold = 0
	}
	if setting.CompletionBonusRatePercent < 0 {
		setting.CompletionBonusRatePercent = 0
	}
	setting.CompletionBonusRatePercent = roundCompensationDecimal(setting.CompletionBonusRatePercent)
	setting.MinWithdrawAmount = roundCompensationDecimal(setting.MinWithdrawAmount)
	if setting.MinWithdrawAmount < 0 {
		setting.MinWithdrawAmount = 0
	}
	return setting
}

// ValidateCompensationSetting 校验奖金规则
func ValidateCompensationSetting(setting CompensationSetting) error {
	normalized := NormalizeCompensationSetting(setting)
	switch normalized.MatchingPolicy {
	case constants.MatchingPolicyPairMin, constants.MatchingPolicyMinDouble, constants.MatchingPolicyWeakerSide2To1:
	default:
		return fmt.Errorf("%w: 未知的对碰策略 %s", ErrCompensationConfigInvalid, normalized.MatchingPolicy)
	}
	switch normalized.VolumeBasis {
	case constants.VolumeBasisMonthly, constants.VolumeBasisCommittedTotal:
	default:
		return fmt.Errorf("%w: 未知的业绩口径 %s", ErrCompensationConfigInvalid, normalized.VolumeBasis)
	}
	if normalized.PropagationDepth < compensationDepthMin || normalized.PropagationDepth > compensationDepthMax {
		return fmt.Errorf("%w: 对碰向上传递层数必须在 1-64 之间", ErrCompensationConfigInvalid)
	}
	if len(normalized.LevelPercents) != constants.MaxUnlockedLevels {
		return fmt.Errorf("%w: 层级奖比例必须为 20 项", ErrCompensationConfigInvalid)
	}
	return nil
}

// DirectRate 直推奖比例
func (s CompensationSetting) DirectRate() decimal.Decimal {
	return percentToRate(s.DirectRatePercent)
}

// MatchingRate 对碰奖比例
func (s CompensationSetting) MatchingRate() decimal.Decimal {
	return percentToRate(s.MatchingRatePercent)
}

// LevelRate 第 level 层的层级奖比例，越界返回 0
func (s CompensationSetting) LevelRate(level int) decimal.Decimal {
	if level < 1 || level > len(s.LevelPercents) {
		return decimal.Zero
	}
	return percentToRate(s.LevelPercents[level-1])
}

// CompletionBonusRate 完成奖比例
func (s CompensationSetting) CompletionBonusRate() decimal.Decimal {
	return percentToRate(s.CompletionBonusRatePercent)
}

// AutoPoolThresholdAmount 自动池门槛
func (s CompensationSetting) AutoPoolThresholdAmount() decimal.Decimal {
	return decimal.NewFromFloat(s.AutoPoolThreshold).Round(2)
}

// PackageVolume 按业绩口径计算套餐业绩
func (s CompensationSetting) PackageVolume(pkg *models.Package) decimal.Decimal {
	if pkg == nil {
		return decimal.Zero
	}
	monthly := pkg.MonthlyAmount.Decimal.Round(2)
	if s.VolumeBasis == constants.VolumeBasisCommittedTotal {
		return monthly.Mul(decimal.NewFromInt(int64(pkg.TotalMonths))).Round(2)
	}
	return monthly
}

func percentToRate(percent float64) decimal.Decimal {
	return decimal.NewFromFloat(percent).Div(decimal.NewFromInt(100))
}

func clampPercent(percent float64) float64 {
	percent = roundCompensationDecimal(percent)
	if percent < compensationRateMin {
		return compensationRateMin
	}
	if percent > compensationRateMax {
		return compensationRateMax
	}
	return percent
}

func roundCompensationDecimal(value float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	return math.Round(value*100) / 100
}
