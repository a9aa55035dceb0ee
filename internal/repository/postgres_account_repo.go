package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/ronbun/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, password_hash, balance, is_admin, created_at, updated_at
		 FROM accounts WHERE id = $1`,
		id,
	).Scan(&account.ID, &account.Name, &account.PasswordHash, &account.Balance,
		&account.IsAdmin, &account.CreatedAt, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}

	return account, nil
}

// FindByName はアカウント名でアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByName(ctx context.Context, name string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, password_hash, balance, is_admin, created_at, updated_at
		 FROM accounts WHERE name = $1`,
		name,
	).Scan(&account.ID, &account.Name, &account.PasswordHash, &account.Balance,
		&account.IsAdmin, &account.CreatedAt, &account.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by name: %w", err)
	}

	return account, nil
}

// Create はアカウントを作成する。
// アカウント名のUNIQUE制約違反はmodel.APIError（DUPLICATE_ACCOUNT）として返す。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, name, password_hash, balance, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.ID, account.Name, account.PasswordHash, account.Balance,
		account.IsAdmin, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		// 23505 = unique_violation
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return model.NewDuplicateAccountError(account.Name)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	return nil
}

// Balance は指定アカウントの現在残高を返す。
func (r *PostgresAccountRepo) Balance(ctx context.Context, id string) (int, error) {
	var balance int
	err := r.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = $1`,
		id,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("account not found: %s", id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	return balance, nil
}

// DeductBalance は残高が足りる場合のみ原子的にcost分を減算する。
// 条件付きUPDATE1文で実行するため、複数セッションが同一アカウントを
// 同時に操作しても残高が負になることはない。
func (r *PostgresAccountRepo) DeductBalance(ctx context.Context, id string, cost int) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance = balance - $2, updated_at = now()
		 WHERE id = $1 AND balance >= $2`,
		id, cost,
	)
	if err != nil {
		return false, fmt.Errorf("failed to deduct balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// CreditBalance は無条件に残高をamount分増加させる。
func (r *PostgresAccountRepo) CreditBalance(ctx context.Context, id string, amount int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET balance = balance + $2, updated_at = now()
		 WHERE id = $1`,
		id, amount,
	)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %s", id)
	}

	return nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
