package service

import (
	"errors"
	"testing"

	"github.com/mlm-engine/internal/config"
	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/models"

	"github.com/shopspring/decimal"
)

func TestNormalizeCompensationSetting(t *testing.T) {
	setting := NormalizeCompensationSetting(CompensationSetting{
		DirectRatePercent:   150,
		MatchingPolicy:      " Weaker_Side_2to1 ",
		MatchingRatePercent: 0,
		VolumeBasis:         "",
		PropagationDepth:    0,
		LevelPercents:       make([]float64, 25),
		AutoPoolThreshold:   -1,
		MinWithdrawAmount:   12.345,
	})

	if setting.DirectRatePercent != 100 {
		t.Fatalf("direct rate should clamp to 100, got %v", setting.DirectRatePercent)
	}
	if setting.MatchingPolicy != constants.MatchingPolicyWeakerSide2To1 || setting.MatchingRatePercent != 5 {
		t.Fatalf("weaker side policy should default to 5%%, got %s %v", setting.MatchingPolicy, setting.MatchingRatePercent)
	}
	if setting.VolumeBasis != constants.VolumeBasisMonthly {
		t.Fatalf("unexpected volume basis: %s", setting.VolumeBasis)
	}
	if setting.PropagationDepth != constants.MaxUnlockedLevels {
		t.Fatalf("unexpected propagation depth: %d", setting.PropagationDepth)
	}
	if len(setting.LevelPercents) != constants.MaxUnlockedLevels {
		t.Fatalf("level table should truncate to 20, got %d", len(setting.LevelPercents))
	}
	if setting.AutoPoolThreshold != 0 || setting.MinWithdrawAmount != 12.35 {
		t.Fatalf("unexpected amounts: %+v", setting)
	}
}

func TestValidateCompensationSetting(t *testing.T) {
	if err := ValidateCompensationSetting(CompensationDefaultSetting()); err != nil {
		t.Fatalf("default setting should be valid: %v", err)
	}

	invalid := CompensationDefaultSetting()
	invalid.VolumeBasis = "quarterly"
	if err := ValidateCompensationSetting(invalid); !errors.Is(err, ErrCompensationConfigInvalid) {
		t.Fatalf("expected invalid basis, got %v", err)
	}

	short := CompensationDefaultSetting()
	short.LevelPercents = []float64{15, 10}
	if err := ValidateCompensationSetting(short); !errors.Is(err, ErrCompensationConfigInvalid) {
		t.Fatalf("expected invalid level table, got %v", err)
	}

	if _, err := NewCompensationService(nil, invalid, LockSetting{}); !errors.Is(err, ErrCompensationConfigInvalid) {
		t.Fatalf("service should refuse invalid setting, got %v", err)
	}
}

func TestCompensationSettingRates(t *testing.T) {
	setting := CompensationSettingFromConfig(config.CompensationConfig{
		DirectRatePercent:          5,
		MatchingPolicy:             constants.MatchingPolicyPairMin,
		VolumeBasis:                constants.VolumeBasisCommittedTotal,
		CompletionBonusRatePercent: 100,
	})

	if !setting.DirectRate().Equal(decimal.RequireFromString("0.05")) {
		t.Fatalf("unexpected direct rate: %s", setting.DirectRate())
	}
	if !setting.MatchingRate().Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("unexpected matching rate: %s", setting.MatchingRate())
	}
	if !setting.LevelRate(1).Equal(decimal.RequireFromString("0.15")) || !setting.LevelRate(20).Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("unexpected level rates: %s %s", setting.LevelRate(1), setting.LevelRate(20))
	}
	if !setting.LevelRate(21).IsZero() || !setting.LevelRate(0).IsZero() {
		t.Fatalf("out of range levels must pay nothing")
	}

	pkg := &models.Package{MonthlyAmount: models.MustMoney("2000"), TotalMonths: 11}
	if !setting.PackageVolume(pkg).Equal(decimal.RequireFromString("22000")) {
		t.Fatalf("unexpected committed volume: %s", setting.PackageVolume(pkg))
	}
	setting.VolumeBasis = constants.VolumeBasisMonthly
	if !setting.PackageVolume(pkg).Equal(decimal.RequireFromString("2000")) {
		t.Fatalf("unexpected monthly volume: %s", setting.PackageVolume(pkg))
	}
}

func TestUnlockedLevelsFor(t *testing.T) {
	cases := map[int64]int{0: 0, 1: 2, 3: 6, 10: 20, 11: 20, 50: 20}
	for directs, expected := range cases {
		if got := unlockedLevelsFor(directs); got != expected {
			t.Fatalf("directs=%d expected %d got %d", directs, expected, got)
		}
	}
}
