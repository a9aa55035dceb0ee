package repository

import (
	"context"
	"sync"

	"github.com/hitoshi/ronbun/internal/model"
)

// MemoryAccountRepo はメモリ上で動作するアカウントリポジトリ。
// テストおよび永続化サービスに接続できない縮退運転で使用する。
// 全操作をmutexで保護し、残高の検査と減算を単一クリティカルセクションで行う。
type MemoryAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account // ID → Account
}

// NewMemoryAccountRepo はMemoryAccountRepoを生成する。
func NewMemoryAccountRepo() *MemoryAccountRepo {
	return &MemoryAccountRepo{
		accounts: make(map[string]*model.Account),
	}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *MemoryAccountRepo) FindByID(_ context.Context, id string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	c := *account
	return &c, nil
}

// FindByName はアカウント名でアカウントを検索する。見つからない場合はnilを返す。
func (r *MemoryAccountRepo) FindByName(_ context.Context, name string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, account := range r.accounts {
		if account.Name == name {
			c := *account
			return &c, nil
		}
	}
	return nil, nil
}

// Create はアカウントを作成する。アカウント名の重複は拒否する。
func (r *MemoryAccountRepo) Create(_ context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.accounts {
		if existing.Name == account.Name {
			return model.NewDuplicateAccountError(account.Name)
		}
	}

	c := *account
	r.accounts[account.ID] = &c
	return nil
}

// Balance は指定アカウントの現在残高を返す。
func (r *MemoryAccountRepo) Balance(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return 0, model.NewAccountNotFoundError()
	}
	return account.Balance, nil
}

// DeductBalance は残高が足りる場合のみ原子的にcost分を減算する。
func (r *MemoryAccountRepo) DeductBalance(_ context.Context, id string, cost int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return false, model.NewAccountNotFoundError()
	}
	if account.Balance < cost {
		return false, nil
	}

	account.Balance -= cost
	return true, nil
}

// CreditBalance は無条件に残高をamount分増加させる。
func (r *MemoryAccountRepo) CreditBalance(_ context.Context, id string, amount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return model.NewAccountNotFoundError()
	}

	account.Balance += amount
	return nil
}

// compile-time interface check
var _ AccountRepository = (*MemoryAccountRepo)(nil)
