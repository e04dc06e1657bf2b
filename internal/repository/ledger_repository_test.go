package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupLedgerRepositoryTest(t *testing.T) (*GormLedgerRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.MigrateLedger(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewLedgerRepository(db), db
}

// forEachLedgerRepository 对 GORM 与内存两种实现执行同一组断言
func forEachLedgerRepository(t *testing.T, fn func(t *testing.T, repo LedgerRepository)) {
	t.Run("gorm", func(t *testing.T) {
		repo, _ := setupLedgerRepositoryTest(t)
		fn(t, repo)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryLedgerRepository())
	})
}

func TestLedgerRepositoryParticipants(t *testing.T) {
	forEachLedgerRepository(t, func(t *testing.T, repo LedgerRepository) {
		sponsor := createLedgerTestParticipant(t, repo, "Sponsor", "SPONSOR1", nil, constants.ParticipantRoleMember)
		alpha := createLedgerTestParticipant(t, repo, "Alpha", "ALPHA001", &sponsor.ID, constants.ParticipantRoleMember)
		createLedgerTestParticipant(t, repo, "Beta", "BETA0001", &sponsor.ID, constants.ParticipantRoleMember)
		createLedgerTestParticipant(t, repo, "Operator", "OPERATOR", nil, constants.ParticipantRoleAdmin)

		found, err := repo.GetParticipantByCode(" alpha001 ")
		if err != nil || found == nil || found.ID != alpha.ID {
			t.Fatalf("lookup by code failed: %+v %v", found, err)
		}
		if missing, err := repo.GetParticipantByCode("NOPE"); err != nil || missing != nil {
			t.Fatalf("unknown code should return nil, got %+v %v", missing, err)
		}

		directs, err := repo.CountDirectReferrals(sponsor.ID)
		if err != nil || directs != 2 {
			t.Fatalf("expected 2 direct referrals, got %d %v", directs, err)
		}

		rows, total, err := repo.ListParticipants(ParticipantListFilter{Keyword: "alp", Page: 1, PageSize: 10})
		if err != nil {
			t.Fatalf("list participants failed: %v", err)
		}
		if total != 1 || len(rows) != 1 || rows[0].ID != alpha.ID {
			t.Fatalf("keyword filter mismatch: total=%d rows=%+v", total, rows)
		}

		now := time.Now()
		if err := repo.RemoveParticipant(alpha.ID, 9, now); err != nil {
			t.Fatalf("remove participant failed: %v", err)
		}
		if removed, err := repo.GetParticipantByID(alpha.ID); err != nil || removed != nil {
			t.Fatalf("removed participant should be hidden, got %+v %v", removed, err)
		}
		directs, _ = repo.CountDirectReferrals(sponsor.ID)
		if directs != 1 {
			t.Fatalf("removed participant must not count as direct referral, got %d", directs)
		}

		ids, err := repo.ListActiveMemberIDs()
		if err != nil {
			t.Fatalf("list active members failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != sponsor.ID {
			t.Fatalf("expected sponsor and beta only, got %v", ids)
		}

		cleared, err := repo.ClearReferrer(sponsor.ID, now)
		if err != nil {
			t.Fatalf("clear referrer failed: %v", err)
		}
		if len(cleared) != 1 {
			t.Fatalf("expected one cleared referral, got %v", cleared)
		}
		if directs, _ = repo.CountDirectReferrals(sponsor.ID); directs != 0 {
			t.Fatalf("expected no referrals after clear, got %d", directs)
		}
	})
}

func TestLedgerRepositoryEdges(t *testing.T) {
	forEachLedgerRepository(t, func(t *testing.T, repo LedgerRepository) {
		parent := createLedgerTestParticipant(t, repo, "P", "PARENT01", nil, constants.ParticipantRoleMember)
		right := createLedgerTestParticipant(t, repo, "R", "RIGHT001", &parent.ID, constants.ParticipantRoleMember)
		left := createLedgerTestParticipant(t, repo, "L", "LEFT0001", &parent.ID, constants.ParticipantRoleMember)

		for _, edge := range []*models.PlacementEdge{
			{ParticipantID: right.ID, ParentID: &parent.ID, Side: constants.SideRight, Level: 1},
			{ParticipantID: left.ID, ParentID: &parent.ID, Side: constants.SideLeft, Level: 1},
		} {
			if err := repo.CreateEdge(edge); err != nil {
				t.Fatalf("create edge failed: %v", err)
			}
		}
		if err := repo.CreateEdge(&models.PlacementEdge{ParticipantID: left.ID, Side: constants.SideLeft}); err == nil {
			t.Fatalf("second edge for the same participant must fail")
		}

		children, err := repo.ListChildEdges(parent.ID)
		if err != nil {
			t.Fatalf("list children failed: %v", err)
		}
		if len(children) != 2 || children[0].Side != constants.SideLeft || children[1].Side != constants.SideRight {
			t.Fatalf("children should be ordered left then right: %+v", children)
		}

		edge, err := repo.GetEdge(left.ID)
		if err != nil || edge == nil {
			t.Fatalf("get edge failed: %+v %v", edge, err)
		}
		edge.ParentID = nil
		edge.Orphaned = true
		edge.Level = 0
		if err := repo.UpdateEdge(edge); err != nil {
			t.Fatalf("update edge failed: %v", err)
		}
		if children, _ = repo.ListChildEdges(parent.ID); len(children) != 1 {
			t.Fatalf("orphaned edge should leave parent, got %+v", children)
		}
		if err := repo.DeleteEdge(right.ID); err != nil {
			t.Fatalf("delete edge failed: %v", err)
		}
		if edge, _ = repo.GetEdge(right.ID); edge != nil {
			t.Fatalf("deleted edge still present: %+v", edge)
		}
	})
}

func TestLedgerRepositoryEarningSums(t *testing.T) {
	forEachLedgerRepository(t, func(t *testing.T, repo LedgerRepository) {
		owner := createLedgerTestParticipant(t, repo, "Owner", "OWNER001", nil, constants.ParticipantRoleMember)
		base := time.Now().UTC().Truncate(time.Second)

		earnings := []*models.Earning{
			{BeneficiaryID: owner.ID, Type: constants.EarningTypeDirect, Amount: models.MustMoney("100"), Reference: "pkg:1:direct", CreatedAt: base},
			{BeneficiaryID: owner.ID, Type: constants.EarningTypeBinary, Amount: models.MustMoney("200"), MatchedLeft: models.MustMoney("2000"), MatchedRight: models.MustMoney("2000"), Reference: "pkg:2:binary:1", CreatedAt: base.Add(time.Minute)},
			{BeneficiaryID: owner.ID, Type: constants.EarningTypeLevel, Amount: models.MustMoney("7.5"), Level: 1, Reference: "pkg:3:level:1", CreatedAt: base.Add(2 * time.Minute)},
		}
		for _, earning := range earnings {
			if err := repo.CreateEarning(earning); err != nil {
				t.Fatalf("create earning failed: %v", err)
			}
		}
		if err := repo.CreateEarning(&models.Earning{BeneficiaryID: owner.ID, Type: constants.EarningTypeDirect, Reference: "pkg:1:direct"}); err == nil {
			t.Fatalf("duplicate reference must be rejected")
		}

		sum, err := repo.SumEarnings(owner.ID)
		if err != nil || !sum.Equal(decimal.RequireFromString("307.5")) {
			t.Fatalf("expected sum 307.5, got %s %v", sum, err)
		}
		left, right, err := repo.SumBinaryConsumption(owner.ID)
		if err != nil || !left.Equal(decimal.NewFromInt(2000)) || !right.Equal(decimal.NewFromInt(2000)) {
			t.Fatalf("unexpected binary consumption: %s %s %v", left, right, err)
		}
		hasBinary, err := repo.HasEarningOfType(owner.ID, constants.EarningTypeBinary)
		if err != nil || !hasBinary {
			t.Fatalf("expected binary earning to exist: %v", err)
		}

		rows, total, err := repo.ListEarnings(EarningListFilter{BeneficiaryID: owner.ID, Page: 1, PageSize: 2})
		if err != nil {
			t.Fatalf("list earnings failed: %v", err)
		}
		if total != 3 || len(rows) != 2 || rows[0].Type != constants.EarningTypeLevel || rows[1].Type != constants.EarningTypeBinary {
			t.Fatalf("earnings should be newest first and paginated: total=%d rows=%+v", total, rows)
		}

		found, err := repo.GetEarningByReference("pkg:2:binary:1")
		if err != nil || found == nil || found.Type != constants.EarningTypeBinary {
			t.Fatalf("lookup by reference failed: %+v %v", found, err)
		}

		archived, err := repo.ArchiveEarningsByBeneficiary(owner.ID, base)
		if err != nil || archived != 3 {
			t.Fatalf("expected 3 archived earnings, got %d %v", archived, err)
		}
		if sum, _ = repo.SumEarnings(owner.ID); !sum.IsZero() {
			t.Fatalf("archived earnings must not be summed, got %s", sum)
		}
		if _, total, _ = repo.ListEarnings(EarningListFilter{BeneficiaryID: owner.ID}); total != 0 {
			t.Fatalf("archived earnings must not be listed, got %d", total)
		}
	})
}

func TestLedgerRepositoryPackagesAndWithdrawals(t *testing.T) {
	forEachLedgerRepository(t, func(t *testing.T, repo LedgerRepository) {
		owner := createLedgerTestParticipant(t, repo, "Owner", "OWNER002", nil, constants.ParticipantRoleMember)
		now := time.Now()

		compensated := &models.Package{OwnerID: owner.ID, MonthlyAmount: models.MustMoney("1000"), TotalMonths: 12, MonthsPaid: 1, CompensatedAt: &now}
		pending := &models.Package{OwnerID: owner.ID, MonthlyAmount: models.MustMoney("500"), TotalMonths: 12, MonthsPaid: 1}
		for _, pkg := range []*models.Package{compensated, pending} {
			if err := repo.CreatePackage(pkg); err != nil {
				t.Fatalf("create package failed: %v", err)
			}
		}
		rows, err := repo.ListCompensatedPackagesByOwners([]uint{owner.ID})
		if err != nil || len(rows) != 1 || rows[0].ID != compensated.ID {
			t.Fatalf("only compensated packages count as volume: %+v %v", rows, err)
		}

		for _, w := range []*models.Withdrawal{
			{ParticipantID: owner.ID, Amount: models.MustMoney("10"), Channel: "bank", Account: "1", Status: constants.WithdrawalStatusPendingReview},
			{ParticipantID: owner.ID, Amount: models.MustMoney("20"), Channel: "bank", Account: "1", Status: constants.WithdrawalStatusPaid},
			{ParticipantID: owner.ID, Amount: models.MustMoney("40"), Channel: "bank", Account: "1", Status: constants.WithdrawalStatusRejected},
		} {
			if err := repo.CreateWithdrawal(w); err != nil {
				t.Fatalf("create withdrawal failed: %v", err)
			}
		}
		open, err := repo.SumOpenWithdrawals(owner.ID)
		if err != nil || !open.Equal(decimal.NewFromInt(30)) {
			t.Fatalf("rejected withdrawals must be excluded, got %s %v", open, err)
		}

		if count, err := repo.ArchivePackagesByOwner(owner.ID, now); err != nil || count != 2 {
			t.Fatalf("expected 2 archived packages, got %d %v", count, err)
		}
		if pkg, _ := repo.GetPackageByID(compensated.ID); pkg != nil {
			t.Fatalf("archived package should be hidden: %+v", pkg)
		}
		if count, err := repo.ArchiveWithdrawalsByParticipant(owner.ID, now); err != nil || count != 3 {
			t.Fatalf("expected 3 archived withdrawals, got %d %v", count, err)
		}
		if open, _ = repo.SumOpenWithdrawals(owner.ID); !open.IsZero() {
			t.Fatalf("archived withdrawals must not be summed, got %s", open)
		}
	})
}

func TestLedgerRepositoryTransactionRollback(t *testing.T) {
	forEachLedgerRepository(t, func(t *testing.T, repo LedgerRepository) {
		boom := errors.New("boom")
		var createdID uint
		err := repo.Transaction(func(tx LedgerRepository) error {
			participant := &models.Participant{Name: "Ghost", ReferralCode: "GHOST001", Status: constants.ParticipantStatusActive, Role: constants.ParticipantRoleMember}
			if err := tx.CreateParticipant(participant); err != nil {
				return err
			}
			createdID = participant.ID
			if found, err := tx.GetParticipantByID(createdID); err != nil || found == nil {
				t.Fatalf("participant should be visible inside transaction: %v", err)
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected rollback error, got %v", err)
		}
		if found, err := repo.GetParticipantByID(createdID); err != nil || found != nil {
			t.Fatalf("rolled back participant still visible: %+v %v", found, err)
		}
	})
}

func createLedgerTestParticipant(t *testing.T, repo LedgerRepository, name, code string, referredBy *uint, role string) *models.Participant {
	t.Helper()
	participant := &models.Participant{
		Name:         name,
		ReferralCode: code,
		ReferredBy:   referredBy,
		Role:         role,
		Status:       constants.ParticipantStatusActive,
	}
	if err := repo.CreateParticipant(participant); err != nil {
		t.Fatalf("create participant %s failed: %v", name, err)
	}
	return participant
}
