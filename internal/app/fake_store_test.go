package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/walletcore/wallet-service/internal/domain"
	"github.com/walletcore/wallet-service/internal/store"
)

// memStore is an in-memory store.Store with real per-account row locks, so
// the engine's locking discipline is exercised the same way it is against
// PostgreSQL. Writes inside a unit of work are staged and only applied when
// the callback returns nil.
type memStore struct {
	mu        sync.Mutex
	rowLocks  map[int64]*sync.Mutex
	balances  map[int64]decimal.Decimal
	accounts  map[int64]*domain.Account
	usernames map[string]int64
	passwords map[int64]string
	transfers []domain.Transfer
	nextID    int64

	// failAppend forces AppendTransfer to report a transient storage failure.
	failAppend bool
}

func newMemStore() *memStore {
	return &memStore{
		rowLocks:  make(map[int64]*sync.Mutex),
		balances:  make(map[int64]decimal.Decimal),
		accounts:  make(map[int64]*domain.Account),
		usernames: make(map[string]int64),
		passwords: make(map[int64]string),
	}
}

func (m *memStore) addAccount(username string, balance decimal.Decimal) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.accounts[id] = &domain.Account{ID: id, Username: username, Balance: balance, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.balances[id] = balance
	m.usernames[username] = id
	m.rowLocks[id] = &sync.Mutex{}
	return id
}

func (m *memStore) balanceOf(id int64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[id]
}

func (m *memStore) ledgerLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transfers)
}

func (m *memStore) CreateAccount(ctx context.Context, username, passwordHash string, initialBalance decimal.Decimal) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.usernames[username]; exists {
		return nil, domain.ErrUsernameTaken
	}
	m.nextID++
	id := m.nextID
	account := &domain.Account{ID: id, Username: username, Balance: initialBalance, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.accounts[id] = account
	m.balances[id] = initialBalance
	m.usernames[username] = id
	m.passwords[id] = passwordHash
	m.rowLocks[id] = &sync.Mutex{}
	copied := *account
	return &copied, nil
}

func (m *memStore) FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	copied := *account
	copied.Balance = m.balances[accountID]
	return &copied, nil
}

func (m *memStore) FindAccountByUsername(ctx context.Context, username string) (*domain.Account, error) {
	m.mu.Lock()
	id, ok := m.usernames[username]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return m.FindAccountByID(context.Background(), id)
}

func (m *memStore) CredentialByUsername(ctx context.Context, username string) (int64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.usernames[username]
	if !ok {
		return 0, "", domain.ErrAccountNotFound
	}
	return id, m.passwords[id], nil
}

func (m *memStore) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[accountID]
	if !ok {
		return decimal.Decimal{}, domain.ErrAccountNotFound
	}
	return balance, nil
}

func (m *memStore) ListTransfers(ctx context.Context, accountID int64, opts domain.TransferListOptions) ([]domain.TransferView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var views []domain.TransferView
	for i := len(m.transfers) - 1; i >= 0; i-- {
		t := m.transfers[i]
		if t.SourceID != accountID && t.DestinationID != accountID {
			continue
		}
		views = append(views, m.viewLocked(t))
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].ID > views[j].ID })
	if opts.Offset < len(views) {
		views = views[opts.Offset:]
	} else {
		views = nil
	}
	if opts.Limit > 0 && len(views) > opts.Limit {
		views = views[:opts.Limit]
	}
	return views, nil
}

func (m *memStore) FindTransferView(ctx context.Context, transferID int64) (*domain.TransferView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transfers {
		if t.ID == transferID {
			view := m.viewLocked(t)
			return &view, nil
		}
	}
	return nil, domain.ErrTransferNotFound
}

func (m *memStore) viewLocked(t domain.Transfer) domain.TransferView {
	return domain.TransferView{
		ID:           t.ID,
		FromUsername: m.accounts[t.SourceID].Username,
		ToUsername:   m.accounts[t.DestinationID].Username,
		Amount:       t.Amount,
		Description:  t.Description,
		CreatedAt:    t.CreatedAt,
	}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(store.UnitOfWork) error) error {
	uow := &memUnitOfWork{store: m, staged: make(map[int64]decimal.Decimal)}
	defer uow.releaseLocks()

	if err := fn(uow); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, balance := range uow.staged {
		m.balances[id] = balance
	}
	for i := range uow.appended {
		m.nextID++
		uow.appended[i].ID = m.nextID
		m.transfers = append(m.transfers, uow.appended[i])
		if uow.results[i] != nil {
			uow.results[i].ID = m.nextID
		}
	}
	return nil
}

// memUnitOfWork stages writes against memStore while holding real row locks.
type memUnitOfWork struct {
	store    *memStore
	held     []int64
	staged   map[int64]decimal.Decimal
	appended []domain.Transfer
	results  []*domain.Transfer
}

func (u *memUnitOfWork) LockBalance(ctx context.Context, accountID int64) (decimal.Decimal, bool, error) {
	u.store.mu.Lock()
	lock, exists := u.store.rowLocks[accountID]
	u.store.mu.Unlock()
	if !exists {
		return decimal.Decimal{}, false, nil
	}

	lock.Lock()
	u.held = append(u.held, accountID)

	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if staged, ok := u.staged[accountID]; ok {
		return staged, true, nil
	}
	return u.store.balances[accountID], true, nil
}

func (u *memUnitOfWork) SetBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	held := false
	for _, id := range u.held {
		if id == accountID {
			held = true
			break
		}
	}
	if !held {
		return domain.NewStorageError("mem.set_balance", fmt.Errorf("account %d written without row lock", accountID))
	}
	u.staged[accountID] = balance
	return nil
}

func (u *memUnitOfWork) AppendTransfer(ctx context.Context, transfer *domain.Transfer) (*domain.Transfer, error) {
	if u.store.failAppend {
		return nil, domain.NewStorageError("mem.append_transfer", fmt.Errorf("injected failure"))
	}
	committed := *transfer
	committed.CreatedAt = time.Now()
	u.appended = append(u.appended, committed)
	result := committed
	u.results = append(u.results, &result)
	return &result, nil
}

func (u *memUnitOfWork) TransferByIdempotencyKey(ctx context.Context, key string) (*domain.Transfer, bool, error) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for _, t := range u.store.transfers {
		if t.IdempotencyKey != nil && *t.IdempotencyKey == key {
			copied := t
			return &copied, true, nil
		}
	}
	return nil, false, nil
}

func (u *memUnitOfWork) releaseLocks() {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for i := len(u.held) - 1; i >= 0; i-- {
		u.store.rowLocks[u.held[i]].Unlock()
	}
	u.held = nil
}

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Exchange   string
	RoutingKey string
	Body       interface{}
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) byRoutingKey(key string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.RoutingKey == key {
			out = append(out, e)
		}
	}
	return out
}
