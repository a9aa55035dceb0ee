package coupon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/ronbun/internal/model"
	"github.com/hitoshi/ronbun/internal/repository"
)

// --- モック定義 ---

type mockRedemptionRepo struct {
	createFn          func(ctx context.Context, redemption *model.CouponRedemption) (bool, error)
	deleteFn          func(ctx context.Context, id string) error
	deleteOlderThanFn func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockRedemptionRepo) Create(ctx context.Context, redemption *model.CouponRedemption) (bool, error) {
	if m.createFn != nil {
		return m.createFn(ctx, redemption)
	}
	return true, nil
}

func (m *mockRedemptionRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockRedemptionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.deleteOlderThanFn != nil {
		return m.deleteOlderThanFn(ctx, cutoff)
	}
	return 0, nil
}

type mockLedger struct {
	creditFn  func(ctx context.Context, accountID string, amount int) error
	balanceFn func(ctx context.Context, accountID string) (int, error)
}

func (m *mockLedger) Credit(ctx context.Context, accountID string, amount int) error {
	if m.creditFn != nil {
		return m.creditFn(ctx, accountID, amount)
	}
	return nil
}

func (m *mockLedger) Balance(ctx context.Context, accountID string) (int, error) {
	if m.balanceFn != nil {
		return m.balanceFn(ctx, accountID)
	}
	return 0, nil
}

// --- compile-time interface checks ---
var _ repository.RedemptionRepository = (*mockRedemptionRepo)(nil)
var _ Ledger = (*mockLedger)(nil)

// --- テスト ---

func TestIssue_ReturnsVerifiableCode(t *testing.T) {
	engine := NewEngine("secret", "RNB")
	svc := NewService(engine, &mockRedemptionRepo{}, &mockLedger{}, nil)

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	code, err := svc.Issue(1000, now)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	valid, amount := engine.Verify(code, now)
	if !valid || amount != 1000 {
		t.Errorf("issued code does not verify: (%v, %d)", valid, amount)
	}
}

func TestIssue_NonPositiveAmount_ReturnsAPIError(t *testing.T) {
	svc := NewService(NewEngine("secret", "RNB"), &mockRedemptionRepo{}, &mockLedger{}, nil)

	_, err := svc.Issue(0, time.Now())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidAmount {
		t.Errorf("Issue(0) error = %v, want INVALID_AMOUNT", err)
	}
}

func TestRedeem_ValidCode_CreditsAndReturnsBalance(t *testing.T) {
	engine := NewEngine("secret", "RNB")
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	code, _ := engine.Generate(1000, now)

	var recordedHash string
	var credited int
	redemptions := &mockRedemptionRepo{
		createFn: func(_ context.Context, r *model.CouponRedemption) (bool, error) {
			recordedHash = r.CodeHash
			return true, nil
		},
	}
	ldg := &mockLedger{
		creditFn: func(_ context.Context, _ string, amount int) error {
			credited = amount
			return nil
		},
		balanceFn: func(_ context.Context, _ string) (int, error) {
			return 1500, nil
		},
	}
	svc := NewService(engine, redemptions, ldg, nil)

	balance, err := svc.Redeem(context.Background(), "acct-1", code, now)
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}
	if balance != 1500 {
		t.Errorf("balance = %d, want 1500", balance)
	}
	if credited != 1000 {
		t.Errorf("credited = %d, want 1000", credited)
	}
	if recordedHash != HashCode(code) {
		t.Error("redemption recorded with unexpected code hash")
	}
}

func TestRedeem_InvalidCode_NoCreditNoRecord(t *testing.T) {
	engine := NewEngine("secret", "RNB")
	now := time.Now()

	created := false
	credited := false
	svc := NewService(engine,
		&mockRedemptionRepo{
			createFn: func(_ context.Context, _ *model.CouponRedemption) (bool, error) {
				created = true
				return true, nil
			},
		},
		&mockLedger{
			creditFn: func(_ context.Context, _ string, _ int) error {
				credited = true
				return nil
			},
		},
		nil,
	)

	_, err := svc.Redeem(context.Background(), "acct-1", "garbage", now)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCoupon {
		t.Fatalf("Redeem(garbage) error = %v, want INVALID_COUPON", err)
	}
	if created || credited {
		t.Error("invalid code must not touch redemption record or balance")
	}
}

func TestRedeem_AlreadyRedeemed_ReturnsInvalidCouponWithoutCredit(t *testing.T) {
	engine := NewEngine("secret", "RNB")
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	code, _ := engine.Generate(500, now)

	credited := false
	svc := NewService(engine,
		&mockRedemptionRepo{
			createFn: func(_ context.Context, _ *model.CouponRedemption) (bool, error) {
				return false, nil // 既に使用済み
			},
		},
		&mockLedger{
			creditFn: func(_ context.Context, _ string, _ int) error {
				credited = true
				return nil
			},
		},
		nil,
	)

	_, err := svc.Redeem(context.Background(), "acct-1", code, now)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCoupon {
		t.Fatalf("Redeem(reused) error = %v, want INVALID_COUPON", err)
	}
	if credited {
		t.Error("reused code must not be credited")
	}
}

func TestRedeem_ExpiredCode_Invalid(t *testing.T) {
	engine := NewEngine("secret", "RNB")
	issued := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	code, _ := engine.Generate(500, issued)

	svc := NewService(engine, &mockRedemptionRepo{}, &mockLedger{}, nil)

	_, err := svc.Redeem(context.Background(), "acct-1", code, issued.Add(24*time.Hour))
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCoupon {
		t.Errorf("Redeem(next day) error = %v, want INVALID_COUPON", err)
	}
}

func TestRedeem_CreditFailure_ReleasesRedemptionRecord(t *testing.T) {
	engine := NewEngine("secret", "RNB")
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	code, _ := engine.Generate(800, now)

	var createdID, deletedID string
	redemptions := &mockRedemptionRepo{
		createFn: func(_ context.Context, r *model.CouponRedemption) (bool, error) {
			createdID = r.ID
			return true, nil
		},
		deleteFn: func(_ context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	ldg := &mockLedger{
		creditFn: func(_ context.Context, _ string, _ int) error {
			return errors.New("db down")
		},
	}
	svc := NewService(engine, redemptions, ldg, nil)

	if _, err := svc.Redeem(context.Background(), "acct-1", code, now); err == nil {
		t.Fatal("expected error when credit fails")
	}
	// 付与に失敗したコードは使用済み扱いにせず、記録を取り消して
	// 再試行可能に戻す。
	if deletedID == "" {
		t.Fatal("credit failure must release the redemption record")
	}
	if deletedID != createdID {
		t.Errorf("released record ID = %q, want %q", deletedID, createdID)
	}
}

func TestRedeem_CreditFailure_ReleasesEvenWhenRequestCancelled(t *testing.T) {
	engine := NewEngine("secret", "RNB")
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	code, _ := engine.Generate(800, now)

	deleted := false
	redemptions := &mockRedemptionRepo{
		deleteFn: func(ctx context.Context, _ string) error {
			// 取り消しはリクエストのキャンセルに巻き込まれてはならない。
			if ctx.Err() != nil {
				return ctx.Err()
			}
			deleted = true
			return nil
		},
	}
	ldg := &mockLedger{
		creditFn: func(_ context.Context, _ string, _ int) error {
			return context.Canceled
		},
	}
	svc := NewService(engine, redemptions, ldg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Redeem(ctx, "acct-1", code, now); err == nil {
		t.Fatal("expected error when credit fails")
	}
	if !deleted {
		t.Error("redemption record must be released even when the request context is cancelled")
	}
}

func TestRedeem_RepoError_Propagates(t *testing.T) {
	engine := NewEngine("secret", "RNB")
	now := time.Now()
	code, _ := engine.Generate(500, now)

	svc := NewService(engine,
		&mockRedemptionRepo{
			createFn: func(_ context.Context, _ *model.CouponRedemption) (bool, error) {
				return false, errors.New("db down")
			},
		},
		&mockLedger{},
		nil,
	)

	if _, err := svc.Redeem(context.Background(), "acct-1", code, now); err == nil {
		t.Error("expected error when redemption store fails")
	}
}
