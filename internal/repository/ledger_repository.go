package repository

import (
	"time"

	"github.com/mlm-engine/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerRepository 奖金台账数据访问接口
// GORM 实现与内存实现可互换，事务内通过回调拿到绑定事务的仓储。
type LedgerRepository interface {
	Transaction(fn func(repo LedgerRepository) error) error

	GetParticipantByID(id uint) (*models.Participant, error)
	GetParticipantByIDForUpdate(id uint) (*models.Participant, error)
	GetParticipantByCode(code string) (*models.Participant, error)
	CreateParticipant(participant *models.Participant) error
	UpdateParticipant(participant *models.Participant) error
	RemoveParticipant(id, actorID uint, at time.Time) error
	ListParticipants(filter ParticipantListFilter) ([]models.Participant, int64, error)
	ListActiveMemberIDs() ([]uint, error)
	CountDirectReferrals(referrerID uint) (int64, error)
	ClearReferrer(referrerID uint, at time.Time) ([]uint, error)

	GetEdge(participantID uint) (*models.PlacementEdge, error)
	ListChildEdges(parentID uint) ([]models.PlacementEdge, error)
	CreateEdge(edge *models.PlacementEdge) error
	UpdateEdge(edge *models.PlacementEdge) error
	DeleteEdge(participantID uint) error

	CreatePackage(pkg *models.Package) error
	GetPackageByID(id uint) (*models.Package, error)
	GetPackageByIDForUpdate(id uint) (*models.Package, error)
	UpdatePackage(pkg *models.Package) error
	ListCompensatedPackagesByOwners(ownerIDs []uint) ([]models.Package, error)
	ArchivePackagesByOwner(ownerID uint, at time.Time) (int64, error)

	CreateEarning(earning *models.Earning) error
	GetEarningByReference(reference string) (*models.Earning, error)
	ListEarnings(filter EarningListFilter) ([]models.Earning, int64, error)
	HasEarningOfType(beneficiaryID uint, earningType string) (bool, error)
	SumEarnings(beneficiaryID uint) (decimal.Decimal, error)
	SumBinaryConsumption(beneficiaryID uint) (decimal.Decimal, decimal.Decimal, error)
	ArchiveEarningsByBeneficiary(beneficiaryID uint, at time.Time) (int64, error)

	CreateTransaction(txn *models.Transaction) error
	ListTransactions(participantID uint, page, pageSize int) ([]models.Transaction, int64, error)
	ArchiveTransactionsByParticipant(participantID uint, at time.Time) (int64, error)

	CreateWithdrawal(withdrawal *models.Withdrawal) error
	GetWithdrawalByID(id uint) (*models.Withdrawal, error)
	GetWithdrawalByIDForUpdate(id uint) (*models.Withdrawal, error)
	UpdateWithdrawal(withdrawal *models.Withdrawal) error
	SumOpenWithdrawals(participantID uint) (decimal.Decimal, error)
	ArchiveWithdrawalsByParticipant(participantID uint, at time.Time) (int64, error)
}

// GormLedgerRepository GORM 台账仓储
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository 创建台账仓储
func NewLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// WithTx 绑定事务
func (r *GormLedgerRepository) WithTx(tx *gorm.DB) LedgerRepository {
	if tx == nil {
		return r
	}
	return &GormLedgerRepository{db: tx}
}

// Transaction 执行事务，嵌套调用时由 GORM 使用保存点
func (r *GormLedgerRepository) Transaction(fn func(repo LedgerRepository) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(r.WithTx(tx))
	})
}

// applyPagination 应用分页参数，统一处理非法页码与偏移量。
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	if offset < 0 {
		offset = 0
	}
	return query.Limit(pageSize).Offset(offset)
}
