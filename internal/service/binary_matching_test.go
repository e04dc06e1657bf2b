package service

import (
	"context"
	"errors"
	"testing"

	"github.com/mlm-engine/internal/constants"

	"github.com/shopspring/decimal"
)

func TestPairMinPolicyEvaluate(t *testing.T) {
	policy, err := NewMatchingPolicy(constants.MatchingPolicyPairMin)
	if err != nil {
		t.Fatalf("new policy failed: %v", err)
	}
	rate := decimal.RequireFromString("0.1")

	result := policy.Evaluate(MatchInput{LeftCarry: dec("3000"), RightCarry: dec("1200")}, rate)
	if !result.Fired {
		t.Fatalf("expected match to fire")
	}
	if !result.MatchedLeft.Equal(dec("1200")) || !result.MatchedRight.Equal(dec("1200")) {
		t.Fatalf("unexpected consumption: %+v", result)
	}
	if !result.Income.Equal(dec("120")) {
		t.Fatalf("expected income 120, got %s", result.Income)
	}

	if result := policy.Evaluate(MatchInput{LeftCarry: dec("3000")}, rate); result.Fired {
		t.Fatalf("expected no match with empty right side: %+v", result)
	}
}

func TestMinDoublePolicyRequiresTwiceTheSmallerSide(t *testing.T) {
	policy, _ := NewMatchingPolicy(constants.MatchingPolicyMinDouble)
	rate := decimal.RequireFromString("0.1")

	if result := policy.Evaluate(MatchInput{LeftCarry: dec("1500"), RightCarry: dec("1000")}, rate); result.Fired {
		t.Fatalf("1500 vs 1000 should not fire: %+v", result)
	}
	result := policy.Evaluate(MatchInput{LeftCarry: dec("2000"), RightCarry: dec("1000")}, rate)
	if !result.Fired || !result.MatchedVolume().Equal(dec("2000")) || !result.Income.Equal(dec("100")) {
		t.Fatalf("2000 vs 1000 should pair 1000 each side: %+v", result)
	}
}

func TestWeakerSidePolicyFirstMatch(t *testing.T) {
	policy, _ := NewMatchingPolicy(constants.MatchingPolicyWeakerSide2To1)
	rate := decimal.RequireFromString("0.05")

	balanced := MatchInput{LeftCarry: dec("1000"), RightCarry: dec("1000"), LeftCount: 2, RightCount: 2, FirstMatch: true}
	if result := policy.Evaluate(balanced, rate); result.Fired {
		t.Fatalf("balanced member counts should not fire first match: %+v", result)
	}

	input := MatchInput{LeftCarry: dec("3000"), RightCarry: dec("1000"), LeftCount: 4, RightCount: 2, FirstMatch: true}
	result := policy.Evaluate(input, rate)
	if !result.Fired {
		t.Fatalf("expected first match to fire")
	}
	if !result.MatchedRight.Equal(dec("1000")) || !result.MatchedLeft.Equal(dec("2000")) {
		t.Fatalf("expected 2:1 consumption, got %+v", result)
	}
	if !result.Income.Equal(dec("50")) {
		t.Fatalf("expected income on weaker side 50, got %s", result.Income)
	}

	capped := MatchInput{LeftCarry: dec("500"), RightCarry: dec("400"), LeftCount: 1, RightCount: 3, FirstMatch: true}
	result = policy.Evaluate(capped, rate)
	if !result.Fired || !result.MatchedLeft.Equal(dec("500")) || !result.MatchedRight.Equal(dec("400")) {
		t.Fatalf("weaker left consumed fully, stronger right capped at carry: %+v", result)
	}
	if !result.Income.Equal(dec("25")) {
		t.Fatalf("expected income on weaker side 25, got %s", result.Income)
	}

	later := policy.Evaluate(MatchInput{LeftCarry: dec("700"), RightCarry: dec("300")}, rate)
	if !later.Fired || !later.MatchedLeft.Equal(dec("300")) || !later.MatchedRight.Equal(dec("300")) {
		t.Fatalf("later matches use pair_min: %+v", later)
	}
}

func TestMatchingPoliciesConserveVolume(t *testing.T) {
	carries := []string{"0", "0.01", "150", "1000", "2000", "2999.99", "10000"}
	counts := []int64{0, 1, 2, 5}
	rate := decimal.RequireFromString("0.1")

	for _, name := range []string{
		constants.MatchingPolicyPairMin,
		constants.MatchingPolicyMinDouble,
		constants.MatchingPolicyWeakerSide2To1,
	} {
		policy, err := NewMatchingPolicy(name)
		if err != nil {
			t.Fatalf("new policy %s failed: %v", name, err)
		}
		for _, left := range carries {
			for _, right := range carries {
				for _, leftCount := range counts {
					for _, rightCount := range counts {
						for _, first := range []bool{true, false} {
							input := MatchInput{
								LeftCarry:  dec(left),
								RightCarry: dec(right),
								LeftCount:  leftCount,
								RightCount: rightCount,
								FirstMatch: first,
							}
							result := policy.Evaluate(input, rate)
							afterLeft := input.LeftCarry.Sub(result.MatchedLeft)
							afterRight := input.RightCarry.Sub(result.MatchedRight)
							if afterLeft.IsNegative() || afterRight.IsNegative() {
								t.Fatalf("%s consumed more than carried: input=%+v result=%+v", name, input, result)
							}
							before := input.LeftCarry.Add(input.RightCarry)
							after := afterLeft.Add(afterRight).Add(result.MatchedVolume())
							if !before.Equal(after) {
								t.Fatalf("%s violated conservation: input=%+v result=%+v", name, input, result)
							}
							if !result.Fired && !result.MatchedVolume().IsZero() {
								t.Fatalf("%s consumed volume without firing: %+v", name, result)
							}
						}
					}
				}
			}
		}
	}
}

func TestNewMatchingPolicyRejectsUnknownName(t *testing.T) {
	if _, err := NewMatchingPolicy("triple_pair"); !errors.Is(err, ErrCompensationConfigInvalid) {
		t.Fatalf("expected config invalid, got %v", err)
	}
}

func TestApplyNewBusinessRequiresDownlineSource(t *testing.T) {
	svc, repo := setupCompensationTest(t)
	ctx := context.Background()

	root := createCompensationTestRoot(t, svc, "R")
	a := enrollCompensationTestMember(t, svc, root, "A", constants.SideLeft)
	b := enrollCompensationTestMember(t, svc, root, "B", constants.SideRight)

	if _, err := svc.ApplyNewBusiness(ctx, a.ID, dec("100"), b.ID); !errors.Is(err, ErrNotInDownline) {
		t.Fatalf("expected not in downline, got %v", err)
	}
	if _, err := svc.ApplyNewBusiness(ctx, root.ID, dec("-1"), a.ID); err != ErrInvalidAmount {
		t.Fatalf("expected invalid amount, got %v", err)
	}

	result, err := svc.ApplyNewBusiness(ctx, root.ID, dec("600"), a.ID)
	if err != nil {
		t.Fatalf("apply left business failed: %v", err)
	}
	if result.Fired {
		t.Fatalf("no right volume yet, got %+v", result)
	}
	result, err = svc.ApplyNewBusiness(ctx, root.ID, dec("400"), b.ID)
	if err != nil {
		t.Fatalf("apply right business failed: %v", err)
	}
	if !result.Fired || !result.MatchedVolume().Equal(dec("800")) {
		t.Fatalf("expected 400 paired on each side, got %+v", result)
	}
	got := reloadCompensationTestParticipant(t, repo, root.ID)
	assertMoney(t, "root left carry", got.LeftCarryForward, "200")
	assertMoney(t, "root right carry", got.RightCarryForward, "0")
	assertMoney(t, "root total earnings", got.TotalEarnings, "40")
}

func TestPropagateBinaryWalksEveryAncestor(t *testing.T) {
	svc, repo := setupCompensationTest(t)
	ctx := context.Background()

	root := createCompensationTestRoot(t, svc, "R")
	a := enrollCompensationTestMember(t, svc, root, "A", constants.SideLeft)
	b := enrollCompensationTestMember(t, svc, a, "B", constants.SideRight)
	c := enrollCompensationTestMember(t, svc, b, "C", constants.SideLeft)

	matches, err := svc.PropagateBinary(ctx, c.ID, dec("250"))
	if err != nil {
		t.Fatalf("propagate failed: %v", err)
	}
	if matches != 0 {
		t.Fatalf("single-sided volume cannot match, got %d", matches)
	}
	assertMoney(t, "B left carry", reloadCompensationTestParticipant(t, repo, b.ID).LeftCarryForward, "250")
	assertMoney(t, "A right carry", reloadCompensationTestParticipant(t, repo, a.ID).RightCarryForward, "250")
	assertMoney(t, "root left carry", reloadCompensationTestParticipant(t, repo, root.ID).LeftCarryForward, "250")
}

func TestPropagateBinaryStopsAtConfiguredDepth(t *testing.T) {
	svc, repo := setupCompensationTest(t, func(setting *CompensationSetting) {
		setting.PropagationDepth = 2
	})
	ctx := context.Background()

	root := createCompensationTestRoot(t, svc, "R")
	a := enrollCompensationTestMember(t, svc, root, "A", constants.SideLeft)
	b := enrollCompensationTestMember(t, svc, a, "B", constants.SideLeft)
	c := enrollCompensationTestMember(t, svc, b, "C", constants.SideLeft)

	if _, err := svc.PropagateBinary(ctx, c.ID, dec("100")); err != nil {
		t.Fatalf("propagate failed: %v", err)
	}
	assertMoney(t, "B left carry", reloadCompensationTestParticipant(t, repo, b.ID).LeftCarryForward, "100")
	assertMoney(t, "A left carry", reloadCompensationTestParticipant(t, repo, a.ID).LeftCarryForward, "100")
	assertMoney(t, "root left carry beyond cap", reloadCompensationTestParticipant(t, repo, root.ID).LeftCarryForward, "0")
}

func dec(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}
