package repository

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mlm-engine/internal/constants"
	"github.com/mlm-engine/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MemoryLedgerRepository 内存台账仓储
// 事务在数据副本上执行，提交时整体替换；同一时刻只允许一个事务。
type MemoryLedgerRepository struct {
	mu    *sync.Mutex
	root  *memoryLedgerRoot
	data  *memoryLedgerData
	inTx  bool
	clock func() time.Time
}

type memoryLedgerRoot struct {
	data *memoryLedgerData
}

type memoryLedgerData struct {
	nextID       map[string]uint
	participants map[uint]models.Participant
	edges        map[uint]models.PlacementEdge // key: participant id
	packages     map[uint]models.Package
	earnings     map[uint]models.Earning
	transactions map[uint]models.Transaction
	withdrawals  map[uint]models.Withdrawal
}

// NewMemoryLedgerRepository 创建内存台账仓储
func NewMemoryLedgerRepository() *MemoryLedgerRepository {
	data := &memoryLedgerData{
		nextID:       map[string]uint{},
		participants: map[uint]models.Participant{},
		edges:        map[uint]models.PlacementEdge{},
		packages:     map[uint]models.Package{},
		earnings:     map[uint]models.Earning{},
		transactions: map[uint]models.Transaction{},
		withdrawals:  map[uint]models.Withdrawal{},
	}
	return &MemoryLedgerRepository{
		mu:    &sync.Mutex{},
		root:  &memoryLedgerRoot{data: data},
		clock: time.Now,
	}
}

func (d *memoryLedgerData) clone() *memoryLedgerData {
	next := &memoryLedgerData{
		nextID:       make(map[string]uint, len(d.nextID)),
		participants: make(map[uint]models.Participant, len(d.participants)),
		edges:        make(map[uint]models.PlacementEdge, len(d.edges)),
		packages:     make(map[uint]models.Package, len(d.packages)),
		earnings:     make(map[uint]models.Earning, len(d.earnings)),
		transactions: make(map[uint]models.Transaction, len(d.transactions)),
		withdrawals:  make(map[uint]models.Withdrawal, len(d.withdrawals)),
	}
	for k, v := range d.nextID {
		next.nextID[k] = v
	}
	for k, v := range d.participants {
		next.participants[k] = v
	}
	for k, v := range d.edges {
		next.edges[k] = v
	}
	for k, v := range d.packages {
		next.packages[k] = v
	}
	for k, v := range d.earnings {
		next.earnings[k] = v
	}
	for k, v := range d.transactions {
		next.transactions[k] = v
	}
	for k, v := range d.withdrawals {
		next.withdrawals[k] = v
	}
	return next
}

func (d *memoryLedgerData) allocate(table string) uint {
	d.nextID[table]++
	return d.nextID[table]
}

// Transaction 执行事务，嵌套调用复用外层事务
func (r *MemoryLedgerRepository) Transaction(fn func(repo LedgerRepository) error) error {
	if fn == nil {
		return nil
	}
	if r.inTx {
		return fn(r)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	working := r.root.data.clone()
	txRepo := &MemoryLedgerRepository{
		mu:    r.mu,
		root:  r.root,
		data:  working,
		inTx:  true,
		clock: r.clock,
	}
	if err := fn(txRepo); err != nil {
		return err
	}
	r.root.data = working
	return nil
}

// with 在锁内访问数据，事务内直接使用事务副本
func (r *MemoryLedgerRepository) with(fn func(d *memoryLedgerData) error) error {
	if r.inTx {
		return fn(r.data)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.root.data)
}

func (r *MemoryLedgerRepository) now() time.Time {
	return r.clock()
}

func participantVisible(p models.Participant) bool {
	return !p.DeletedAt.Valid
}

func (r *MemoryLedgerRepository) GetParticipantByID(id uint) (*models.Participant, error) {
	var result *models.Participant
	err := r.with(func(d *memoryLedgerData) error {
		p, ok := d.participants[id]
		if ok && participantVisible(p) {
			result = &p
		}
		return nil
	})
	return result, err
}

// GetParticipantByIDForUpdate 内存实现由事务互斥保证
func (r *MemoryLedgerRepository) GetParticipantByIDForUpdate(id uint) (*models.Participant, error) {
	return r.GetParticipantByID(id)
}

func (r *MemoryLedgerRepository) GetParticipantByCode(code string) (*models.Participant, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, nil
	}
	var result *models.Participant
	err := r.with(func(d *memoryLedgerData) error {
		for _, p := range d.participants {
			if participantVisible(p) && p.ReferralCode == normalized {
				item := p
				result = &item
				return nil
			}
		}
		return nil
	})
	return result, err
}

func (r *MemoryLedgerRepository) CreateParticipant(participant *models.Participant) error {
	if participant == nil {
		return nil
	}
	return r.with(func(d *memoryLedgerData) error {
		for _, p := range d.participants {
			if p.ReferralCode == participant.ReferralCode {
				return fmt.Errorf("participants.referral_code duplicated: %s", participant.ReferralCode)
			}
		}
		now := r.now()
		if participant.ID == 0 {
			participant.ID = d.allocate("participants")
		}
		if participant.CreatedAt.IsZero() {
			participant.CreatedAt = now
		}
		participant.UpdatedAt = now
		d.participants[participant.ID] = *participant
		return nil
	})
}

func (r *MemoryLedgerRepository) UpdateParticipant(participant *models.Participant) error {
	if participant == nil {
		return nil
	}
	return r.with(func(d *memoryLedgerData) error {
		participant.UpdatedAt = r.now()
		d.participants[participant.ID] = *participant
		return nil
	})
}

func (r *MemoryLedgerRepository) RemoveParticipant(id, actorID uint, at time.Time) error {
	return r.with(func(d *memoryLedgerData) error {
		p, ok := d.participants[id]
		if !ok {
			return nil
		}
		p.Status = constants.ParticipantStatusRemoved
		if actorID != 0 {
			actor := actorID
			p.RemovedBy = &actor
		}
		p.UpdatedAt = at
		p.DeletedAt = gorm.DeletedAt{Time: at, Valid: true}
		d.participants[id] = p
		return nil
	})
}

func (r *MemoryLedgerRepository) ListParticipants(filter ParticipantListFilter) ([]models.Participant, int64, error) {
	var rows []models.Participant
	err := r.with(func(d *memoryLedgerData) error {
		keyword := strings.ToLower(strings.TrimSpace(filter.Keyword))
		role := strings.TrimSpace(filter.Role)
		for _, p := range d.participants {
			if !participantVisible(p) {
				continue
			}
			if role != "" && p.Role != role {
				continue
			}
			if filter.ReferredBy != 0 && (p.ReferredBy == nil || *p.ReferredBy != filter.ReferredBy) {
				continue
			}
			if keyword != "" &&
				!strings.Contains(strings.ToLower(p.Name), keyword) &&
				!strings.Contains(strings.ToLower(p.ReferralCode), keyword) {
				continue
			}
			rows = append(rows, p)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	total := int64(len(rows))
	return paginateSlice(rows, filter.Page, filter.PageSize), total, nil
}

func (r *MemoryLedgerRepository) ListActiveMemberIDs() ([]uint, error) {
	ids := []uint{}
	err := r.with(func(d *memoryLedgerData) error {
		for id, p := range d.participants {
			if participantVisible(p) && p.Role != constants.ParticipantRoleAdmin && p.Status == constants.ParticipantStatusActive {
				ids = append(ids, id)
			}
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

func (r *MemoryLedgerRepository) CountDirectReferrals(referrerID uint) (int64, error) {
	var total int64
	err := r.with(func(d *memoryLedgerData) error {
		for _, p := range d.participants {
			if participantVisible(p) && p.ReferredBy != nil && *p.ReferredBy == referrerID {
				total++
			}
		}
		return nil
	})
	return total, err
}

func (r *MemoryLedgerRepository) ClearReferrer(referrerID uint, at time.Time) ([]uint, error) {
	ids := []uint{}
	err := r.with(func(d *memoryLedgerData) error {
		for id, p := range d.participants {
			if p.ReferredBy != nil && *p.ReferredBy == referrerID {
				p.ReferredBy = nil
				p.UpdatedAt = at
				d.participants[id] = p
				if participantVisible(p) {
					ids = append(ids, id)
				}
			}
		}
		return nil
	})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, err
}

func (r *MemoryLedgerRepository) GetEdge(participantID uint) (*models.PlacementEdge, error) {
	var result *models.PlacementEdge
	err := r.with(func(d *memoryLedgerData) error {
		if edge, ok := d.edges[participantID]; ok {
			result = &edge
		}
		return nil
	})
	return result, err
}

func (r *MemoryLedgerRepository) ListChildEdges(parentID uint) ([]models.PlacementEdge, error) {
	rows := []models.PlacementEdge{}
	if parentID == 0 {
		return rows, nil
	}
	err := r.with(func(d *memoryLedgerData) error {
		for _, edge := range d.edges {
			if edge.ParentID != nil && *edge.ParentID == parentID {
				rows = append(rows, edge)
			}
		}
		return nil
	})
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Side != rows[j].Side {
			return rows[i].Side < rows[j].Side
		}
		return rows[i].ID < rows[j].ID
	})
	return rows, err
}

func (r *MemoryLedgerRepository) CreateEdge(edge *models.PlacementEdge) error {
	if edge == nil {
		return nil
	}
	return r.with(func(d *memoryLedgerData) error {
		if _, exists := d.edges[edge.ParticipantID]; exists {
			return fmt.Errorf("placement_edges.participant_id duplicated: %d", edge.ParticipantID)
		}
		now := r.now()
		if edge.ID == 0 {
			edge.ID = d.allocate("placement_edges")
		}
		if edge.CreatedAt.IsZero() {
			edge.CreatedAt = now
		}
		edge.UpdatedAt = now
		d.edges[edge.ParticipantID] = *edge
		return nil
	})
}

func (r *MemoryLedgerRepository) UpdateEdge(edge *models.PlacementEdge) error {
	if edge == nil {
		return nil
	}
	return r.with(func(d *memoryLedgerData) error {
		edge.UpdatedAt = r.now()
		d.edges[edge.ParticipantID] = *edge
		return nil
	})
}

func (r *MemoryLedgerRepository) DeleteEdge(participantID uint) error {
	return r.with(func(d *memoryLedgerData) error {
		delete(d.edges, participantID)
		return nil
	})
}

func (r *MemoryLedgerRepository) CreatePackage(pkg *models.Package) error {
	if pkg == nil {
		return nil
	}
	return r.with(func(d *memoryLedgerData) error {
		now := r.now()
		if pkg.ID == 0 {
			pkg.ID = d.allocate("packages")
		}
		if pkg.CreatedAt.IsZero() {
			pkg.CreatedAt = now
		}
		pkg.UpdatedAt = now
		d.packages[pkg.ID] = *pkg
		return nil
	})
}

func (r *MemoryLedgerRepository) GetPackageByID(id uint) (*models.Package, error) {
	var result *models.Package
	err := r.with(func(d *memoryLedgerData) error {
		if pkg, ok := d.packages[id]; ok && pkg.ArchivedAt == nil {
			result = &pkg
		}
		return nil
	})
	return result, err
}

func (r *MemoryLedgerRepository) GetPackageByIDForUpdate(id uint) (*models.Package, error) {
	return r.GetPackageByID(id)
}

func (r *MemoryLedgerRepository) UpdatePackage(pkg *models.Package) error {
	if pkg == nil {
		return nil
	}
	return r.with(func(d *memoryLedgerData) error {
		pkg.UpdatedAt = r.now()
		d.packages[pkg.ID] = *pkg
		return nil
	})
}

func (r *MemoryLedgerRepository) ListCompensatedPackagesByOwners(ownerIDs []uint) ([]models.Package, error) {
	rows := []models.Package{}
	if len(ownerIDs) == 0 {
		return rows, nil
	}
	owners := make(map[uint]struct{}, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = struct{}{}
	}
	err := r.with(func(d *memoryLedgerData) error {
		for _, pkg := range d.packages {
			if _, ok := owners[pkg.OwnerID]; !ok {
				continue
			}
			if pkg.CompensatedAt == nil || pkg.ArchivedAt != nil {
				continue
			}
			rows = append(rows, pkg)
		}
		return nil
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, err
}

func (r *MemoryLedgerRepository) ArchivePackagesByOwner(ownerID uint, at time.Time) (int64, error) {
	var affected int64
	err := r.with(func(d *memoryLedgerData) error {
		for id, pkg := range d.packages {
			if pkg.OwnerID == ownerID && pkg.ArchivedAt == nil {
				archivedAt := at
				pkg.ArchivedAt = &archivedAt
				pkg.UpdatedAt = at
				d.packages[id] = pkg
				affected++
			}
		}
		return nil
	})
	return affected, err
}

func (r *MemoryLedgerRepository) CreateEarning(earning *models.Earning) error {
	if earning == nil {
		return nil
	}
	return r.with(func(d *memoryLedgerData) error {
		for _, existing := range d.earnings {
			if existing.Reference == earning.Reference {
				return fmt.Errorf("earnings.reference duplicated: %s", earning.Reference)
			}
		}
		if earning.ID == 0 {
			earning.ID = d.allocate("earnings")
		}
		if earning.CreatedAt.IsZero() {
			earning.CreatedAt = r.now()
		}
		d.earnings[earning.ID] = *earning
		return nil
	})
}

func (r *MemoryLedgerRepository) GetEarningByReference(reference string) (*models.Earning, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, nil
	}
	var result *models.Earning
	err := r.with(func(d *memoryLedgerData) error {
		for _, earning := range d.earnings {
			if earning.Reference == reference {
				item := earning
				result = &item
				return nil
			}
		}
		return nil
	})
	return result, err
}

func (r *MemoryLedgerRepository) ListEarnings(filter EarningListFilter) ([]models.Earning, int64, error) {
	rows := []models.Earning{}
	err := r.with(func(d *memoryLedgerData) error {
		earningType := strings.TrimSpace(filter.Type)
		for _, earning := range d.earnings {
			if earning.ArchivedAt != nil {
				continue
			}
			if filter.BeneficiaryID != 0 && earning.BeneficiaryID != filter.BeneficiaryID {
				continue
			}
			if earningType != "" && earning.Type != earningType {
				continue
			}
			if filter.CreatedFrom != nil && earning.CreatedAt.Before(*filter.CreatedFrom) {
				continue
			}
			if filter.CreatedTo != nil && earning.CreatedAt.After(*filter.CreatedTo) {
				continue
			}
			rows = append(rows, earning)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
	total := int64(len(rows))
	return paginateSlice(rows, filter.Page, filter.PageSize), total, nil
}

func earningValid(earning models.Earning) bool {
	return earning.ArchivedAt == nil && earning.InvalidatedAt == nil
}

func (r *MemoryLedgerRepository) HasEarningOfType(beneficiaryID uint, earningType string) (bool, error) {
	found := false
	err := r.with(func(d *memoryLedgerData) error {
		for _, earning := range d.earnings {
			if earningValid(earning) && earning.BeneficiaryID == beneficiaryID && earning.Type == earningType {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (r *MemoryLedgerRepository) SumEarnings(beneficiaryID uint) (decimal.Decimal, error) {
	total := decimal.Zero
	err := r.with(func(d *memoryLedgerData) error {
		for _, earning := range d.earnings {
			if earningValid(earning) && earning.BeneficiaryID == beneficiaryID {
				total = total.Add(earning.Amount.Decimal)
			}
		}
		return nil
	})
	return total.Round(2), err
}

func (r *MemoryLedgerRepository) SumBinaryConsumption(beneficiaryID uint) (decimal.Decimal, decimal.Decimal, error) {
	left, right := decimal.Zero, decimal.Zero
	err := r.with(func(d *memoryLedgerData) error {
		for _, earning := range d.earnings {
			if !earningValid(earning) || earning.BeneficiaryID != beneficiaryID || earning.Type != constants.EarningTypeBinary {
				continue
			}
			left = left.Add(earning.MatchedLeft.Decimal)
			right = right.Add(earning.MatchedRight.Decimal)
		}
		return nil
	})
	return left.Round(2), right.Round(2), err
}

func (r *MemoryLedgerRepository) ArchiveEarningsByBeneficiary(beneficiaryID uint, at time.Time) (int64, error) {
	var affected int64
	err := r.with(func(d *memoryLedgerData) error {
		for id, earning := range d.earnings {
			if earning.BeneficiaryID == beneficiaryID && earning.ArchivedAt == nil {
				archivedAt := at
				earning.ArchivedAt = &archivedAt
				d.earnings[id] = earning
				affected++
			}
		}
		return nil
	})
	return affected, err
}

func (r *MemoryLedgerRepository) CreateTransaction(txn *models.Transaction) error {
	if txn == nil {
		return nil
	}
	return r.with(func(d *memoryLedgerData) error {
		if txn.ID == 0 {
			txn.ID = d.allocate("transactions")
		}
		if txn.CreatedAt.IsZero() {
			txn.CreatedAt = r.now()
		}
		d.transactions[txn.ID] = *txn
		return nil
	})
}

func (r *MemoryLedgerRepository) ListTransactions(participantID uint, page, pageSize int) ([]models.Transaction, int64, error) {
	rows := []models.Transaction{}
	err := r.with(func(d *memoryLedgerData) error {
		for _, txn := range d.transactions {
			if txn.ParticipantID == participantID && txn.ArchivedAt == nil {
				rows = append(rows, txn)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID > rows[j].ID
	})
	total := int64(len(rows))
	return paginateSlice(rows, page, pageSize), total, nil
}

func (r *MemoryLedgerRepository) ArchiveTransactionsByParticipant(participantID uint, at time.Time) (int64, error) {
	var affected int64
	err := r.with(func(d *memoryLedgerData) error {
		for id, txn := range d.transactions {
			if txn.ParticipantID == participantID && txn.ArchivedAt == nil {
				archivedAt := at
				txn.ArchivedAt = &archivedAt
				d.transactions[id] = txn
				affected++
			}
		}
		return nil
	})
	return affected, err
}

func (r *MemoryLedgerRepository) CreateWithdrawal(withdrawal *models.Withdrawal) error {
	if withdrawal == nil {
		return nil
	}
	return r.with(func(d *memoryLedgerData) error {
		now := r.now()
		if withdrawal.ID == 0 {
			withdrawal.ID = d.allocate("withdrawals")
		}
		if withdrawal.CreatedAt.IsZero() {
			withdrawal.CreatedAt = now
		}
		withdrawal.UpdatedAt = now
		d.withdrawals[withdrawal.ID] = *withdrawal
		return nil
	})
}

func (r *MemoryLedgerRepository) GetWithdrawalByID(id uint) (*models.Withdrawal, error) {
	var result *models.Withdrawal
	err := r.with(func(d *memoryLedgerData) error {
		if withdrawal, ok := d.withdrawals[id]; ok && withdrawal.ArchivedAt == nil {
			result = &withdrawal
		}
		return nil
	})
	return result, err
}

func (r *MemoryLedgerRepository) GetWithdrawalByIDForUpdate(id uint) (*models.Withdrawal, error) {
	return r.GetWithdrawalByID(id)
}

func (r *MemoryLedgerRepository) UpdateWithdrawal(withdrawal *models.Withdrawal) error {
	if withdrawal == nil {
		return nil
	}
	return r.with(func(d *memoryLedgerData) error {
		withdrawal.UpdatedAt = r.now()
		d.withdrawals[withdrawal.ID] = *withdrawal
		return nil
	})
}

func (r *MemoryLedgerRepository) SumOpenWithdrawals(participantID uint) (decimal.Decimal, error) {
	total := decimal.Zero
	err := r.with(func(d *memoryLedgerData) error {
		for _, withdrawal := range d.withdrawals {
			if withdrawal.ParticipantID != participantID || withdrawal.ArchivedAt != nil {
				continue
			}
			if withdrawal.Status == constants.WithdrawalStatusPendingReview || withdrawal.Status == constants.WithdrawalStatusPaid {
				total = total.Add(withdrawal.Amount.Decimal)
			}
		}
		return nil
	})
	return total.Round(2), err
}

func (r *MemoryLedgerRepository) ArchiveWithdrawalsByParticipant(participantID uint, at time.Time) (int64, error) {
	var affected int64
	err := r.with(func(d *memoryLedgerData) error {
		for id, withdrawal := range d.withdrawals {
			if withdrawal.ParticipantID == participantID && withdrawal.ArchivedAt == nil {
				archivedAt := at
				withdrawal.ArchivedAt = &archivedAt
				withdrawal.UpdatedAt = at
				d.withdrawals[id] = withdrawal
				affected++
			}
		}
		return nil
	})
	return affected, err
}

func paginateSlice[T any](rows []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return rows
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}
