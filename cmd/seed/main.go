package main

import (
	"context"
	"errors"

	"github.com/mlm-engine/internal/config"
	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/logger"
	"github.com/mlm-engine/internal/models"
	"github.com/mlm-engine/internal/repository"
	"github.com/mlm-engine/internal/service"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// seedMember 演示数据：按顺序注册，推荐人为已注册会员的名字
type seedMember struct {
	Name    string
	Sponsor string
	Side    string
	Monthly string
	Months  int
}

var seedMembers = []seedMember{
	{Name: "alice", Sponsor: "root", Side: constants.SideLeft, Monthly: "1000", Months: 12},
	{Name: "bob", Sponsor: "root", Side: constants.SideRight, Monthly: "500", Months: 12},
	{Name: "carol", Sponsor: "alice", Side: constants.SideLeft, Monthly: "300", Months: 6},
	{Name: "dave", Sponsor: "alice", Side: constants.SideRight, Monthly: "300", Months: 6},
	{Name: "erin", Sponsor: "bob", Side: constants.SideLeft, Monthly: "800", Months: 12},
	{Name: "frank", Sponsor: "root", Side: constants.SideLeft, Monthly: "200", Months: 3},
}

func main() {
	_ = godotenv.Load()

	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	repo := repository.NewLedgerRepository(models.DB)
	svc, err := service.NewCompensationService(repo,
		service.CompensationSettingFromConfig(cfg.Compensation),
		service.LockSettingFromConfig(cfg.Lock),
	)
	if err != nil {
		stdLog.Fatalf("Failed to init compensation service: %v", err)
	}

	// 已有普通会员时不重复写入
	_, total, err := repo.ListParticipants(repository.ParticipantListFilter{
		Page:     1,
		PageSize: 1,
		Role:     constants.ParticipantRoleMember,
	})
	if err != nil {
		stdLog.Fatalf("Failed to check participants: %v", err)
	}
	if total > 0 {
		stdLog.Printf("Participants already exist (%d), skip seeding", total)
		return
	}

	ctx := context.Background()
	root, err := svc.CreateRoot(ctx, "root")
	if err != nil {
		stdLog.Fatalf("Failed to create root: %v", err)
	}
	codes := map[string]string{"root": root.ReferralCode}
	stdLog.Printf("Created root: id=%d code=%s", root.ID, root.ReferralCode)

	for _, member := range seedMembers {
		sponsorCode, ok := codes[member.Sponsor]
		if !ok {
			stdLog.Printf("Sponsor %s not seeded, skip %s", member.Sponsor, member.Name)
			continue
		}
		result, err := svc.EnrollParticipant(ctx, service.EnrollInput{
			Name:        member.Name,
			SponsorCode: sponsorCode,
			Side:        member.Side,
			Package: &service.PackageInput{
				Tier:          "standard",
				MonthlyAmount: decimal.RequireFromString(member.Monthly),
				TotalMonths:   member.Months,
				MonthsPaid:    1,
			},
		})
		if err != nil {
			if errors.Is(err, service.ErrPartialOrchestration) {
				stdLog.Printf("Compensation for %s rolled back: %v", member.Name, err)
				continue
			}
			stdLog.Fatalf("Failed to enroll %s: %v", member.Name, err)
		}
		codes[member.Name] = result.Participant.ReferralCode
		stdLog.Printf("Enrolled %s: id=%d parent=%d side=%s level=%d",
			member.Name,
			result.Participant.ID,
			*result.Edge.ParentID,
			result.Edge.Side,
			result.Edge.Level,
		)
	}

	stdLog.Printf("Seed completed")
}
