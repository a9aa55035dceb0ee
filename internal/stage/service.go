package stage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ronbun/internal/ai"
	"github.com/hitoshi/ronbun/internal/model"
	"github.com/hitoshi/ronbun/internal/repository"
)

// refundTimeout は払い戻し専用コンテキストのタイムアウト。
const refundTimeout = 5 * time.Second

// Ledger はステージ実行に必要な残高操作のインターフェース。
// ledger.Serviceの部分集合として定義する。
type Ledger interface {
	TryDeduct(ctx context.Context, accountID string, cost int) (bool, error)
	Refund(ctx context.Context, accountID string, amount int) error
	Balance(ctx context.Context, accountID string) (int, error)
}

// Metrics はステージ実行のメトリクス収集インターフェース。
type Metrics interface {
	RecordAISuccess(stage string, duration time.Duration)
	RecordAIFailure(stage string)
	RecordDeduction(amount int)
	RecordRefund(amount int)
	RecordInsufficientBalance()
}

// Result はステージ操作の結果を表す。
// 確認待ちの場合はOutputが空で、StateがGateAwaitingConfirmationになる。
type Result struct {
	Stage   model.Stage
	State   GateState
	Cost    int
	Balance int
	Output  string
}

// Service はステージ操作のサービス層。
// コスト確認 → 残高減算 → AI呼び出し → コンテキスト反映 → 記録の流れを
// 全ステージ共通の1本の経路として実装する。
type Service struct {
	gate     *Gate
	contexts *ContextStore
	ledger   Ledger
	chatAI   ai.TextService // チャット補完モデル（変因・方法・草稿・整形・チャット）
	searchAI ai.TextService // 生成コンテンツモデル（先行研究検索）
	records  repository.RecordRepository
	metrics  Metrics
	costs    CostTable
}

// NewService はServiceを生成する。
// recordsとmetricsはnil許容で、nilの場合は該当機能を黙ってスキップする。
func NewService(
	gate *Gate,
	contexts *ContextStore,
	ledger Ledger,
	chatAI ai.TextService,
	searchAI ai.TextService,
	records repository.RecordRepository,
	metrics Metrics,
	costs CostTable,
) *Service {
	return &Service{
		gate:     gate,
		contexts: contexts,
		ledger:   ledger,
		chatAI:   chatAI,
		searchAI: searchAI,
		records:  records,
		metrics:  metrics,
		costs:    costs,
	}
}

// Begin はステージ操作を開始する。
// 確認が必要なステージでは操作を確認待ちとして滞留させ、コストを提示して返る。
// この時点で残高には触れない。即時実行ステージ（チャット）はそのまま実行する。
// 既に確認待ちの操作がある場合は新しい操作で置き換えられる。
func (s *Service) Begin(ctx context.Context, sessionID, accountID string, stageName, payload string) (*Result, error) {
	st := model.Stage(stageName)
	if !model.ValidStage(st) {
		return nil, model.NewInvalidStageError(stageName)
	}

	rc := s.contexts.Get(sessionID)
	if err := validateInput(st, rc, payload); err != nil {
		return nil, err
	}

	cost := s.costs.Cost(st)

	if !RequiresConfirmation(st) {
		return s.execute(ctx, sessionID, accountID, st, payload, cost)
	}

	s.gate.Stage(sessionID, st, payload, cost)

	balance, err := s.ledger.Balance(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("残高の取得に失敗しました: %w", err)
	}

	return &Result{
		Stage:   st,
		State:   GateAwaitingConfirmation,
		Cost:    cost,
		Balance: balance,
	}, nil
}

// Confirm は確認待ちの操作を確定して実行する。
// 確認待ちが存在しない場合はNoPendingActionエラーを返す。
// 実行の成否にかかわらず確認待ちは解消される。
func (s *Service) Confirm(ctx context.Context, sessionID, accountID string) (*Result, error) {
	action, ok := s.gate.Take(sessionID)
	if !ok {
		return nil, model.NewNoPendingActionError()
	}

	// 開始から確定までの間にコンテキストが変わっている可能性があるため、
	// 減算の前に前提を検証し直す
	rc := s.contexts.Get(sessionID)
	if err := validateInput(action.Stage, rc, action.Payload); err != nil {
		return nil, err
	}

	return s.execute(ctx, sessionID, accountID, action.Stage, action.Payload, action.Cost)
}

// Cancel は確認待ちの操作を破棄する。残高とコンテキストは変化しない。
func (s *Service) Cancel(sessionID string) error {
	if !s.gate.Cancel(sessionID) {
		return model.NewNoPendingActionError()
	}
	return nil
}

// State は現在のゲート状態と確認待ち操作（あれば）を返す。
func (s *Service) State(sessionID string) (GateState, *PendingAction) {
	action, ok := s.gate.Peek(sessionID)
	if !ok {
		return GateIdle, nil
	}
	return GateAwaitingConfirmation, action
}

// Context は現在のResearchContextのスナップショットを返す。
func (s *Service) Context(sessionID string) *model.ResearchContext {
	return s.contexts.Get(sessionID)
}

// SetTopic は研究主題を設定する。無料操作。
func (s *Service) SetTopic(sessionID, topic string) error {
	if topic == "" {
		return model.NewMissingInputError("topic")
	}
	s.contexts.Update(sessionID, func(rc *model.ResearchContext) {
		rc.Topic = topic
	})
	return nil
}

// ConfirmVariables は利用者が選んだ変因構造を確定テキストとして保存する。無料操作。
func (s *Service) ConfirmVariables(sessionID, variables string) error {
	if variables == "" {
		return model.NewMissingInputError("variables")
	}
	s.contexts.Update(sessionID, func(rc *model.ResearchContext) {
		rc.Variables = variables
	})
	return nil
}

// ConfirmMethod は利用者が選んだ研究方法を確定テキストとして保存する。無料操作。
func (s *Service) ConfirmMethod(sessionID, method string) error {
	if method == "" {
		return model.NewMissingInputError("method")
	}
	s.contexts.Update(sessionID, func(rc *model.ResearchContext) {
		rc.Method = method
	})
	return nil
}

// AddReference は取り込んだ参考文献をコンテキストに追加する。無料操作。
func (s *Service) AddReference(sessionID string, ref model.Reference) {
	s.contexts.Update(sessionID, func(rc *model.ResearchContext) {
		rc.References = append(rc.References, ref)
	})
}

// DropSession はセッション終了時にコンテキストと確認待ち操作を破棄する。
func (s *Service) DropSession(sessionID string) {
	s.gate.Drop(sessionID)
	s.contexts.Delete(sessionID)
}

// StartCleanup は放置されたコンテキストと確認待ち操作を定期的に破棄する
// バックグラウンドループを開始し、停止用の関数を返す。
// ログアウトを経ずに期限切れ・放置されたセッションの分を回収する。
func (s *Service) StartCleanup(interval, ttl time.Duration) (stop func()) {
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				contexts := s.contexts.DeleteIdle(ttl)
				actions := s.gate.DeleteStale(ttl)
				if contexts > 0 || actions > 0 {
					slog.Info("放置セッションのデータを破棄しました",
						slog.Int("contexts", contexts),
						slog.Int("pending_actions", actions),
					)
				}
			case <-stopCh:
				return
			}
		}
	}()
	return func() { close(stopCh) }
}

// execute は減算 → AI呼び出し → 反映 → 記録 の共通経路。
//
// 減算はAI呼び出しの前に行い、呼び出しが失敗した場合は全額を払い戻す。
// このためAI呼び出しの失敗が差し引きでエネルギー損失になることはなく、
// コンテキストも変更されない。
func (s *Service) execute(ctx context.Context, sessionID, accountID string, st model.Stage, payload string, cost int) (*Result, error) {
	deducted, err := s.ledger.TryDeduct(ctx, accountID, cost)
	if err != nil {
		return nil, err
	}
	if !deducted {
		if s.metrics != nil {
			s.metrics.RecordInsufficientBalance()
		}
		balance, balErr := s.ledger.Balance(ctx, accountID)
		if balErr != nil {
			balance = 0
		}
		return nil, model.NewInsufficientBalanceError(cost, balance)
	}
	if s.metrics != nil {
		s.metrics.RecordDeduction(cost)
	}

	rc := s.contexts.Get(sessionID)
	systemContext, userPrompt := buildPrompt(st, rc, payload)

	svc := s.chatAI
	if st == model.StageLiterature {
		svc = s.searchAI
	}

	start := time.Now()
	response, err := svc.Complete(ctx, systemContext, userPrompt)
	if err != nil {
		slog.Error("AI呼び出しに失敗したため払い戻します",
			slog.String("account_id", accountID),
			slog.String("stage", string(st)),
			slog.Int("cost", cost),
			slog.String("error", err.Error()),
		)
		if s.metrics != nil {
			s.metrics.RecordAIFailure(string(st))
		}
		// AI呼び出しの失敗理由が利用者の離脱（コンテキストのキャンセル）でも
		// 残高は戻す必要があるため、払い戻しはリクエストから切り離した
		// コンテキストで実行する
		refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
		defer cancel()
		if refundErr := s.ledger.Refund(refundCtx, accountID, cost); refundErr != nil {
			// 払い戻し失敗は残高の損失になるため最優先でログに残す
			slog.Error("払い戻しに失敗しました",
				slog.String("account_id", accountID),
				slog.Int("amount", cost),
				slog.String("error", refundErr.Error()),
			)
		} else if s.metrics != nil {
			s.metrics.RecordRefund(cost)
		}
		return nil, model.NewServiceUnavailableError()
	}
	if s.metrics != nil {
		s.metrics.RecordAISuccess(string(st), time.Since(start))
	}

	now := time.Now()
	s.contexts.Update(sessionID, func(rc *model.ResearchContext) {
		applyResult(st, rc, payload, response, now)
	})

	// 記録の書き込み失敗は非致命。操作自体は成功として扱う。
	if s.records != nil {
		record := &model.StageRecord{
			ID:        uuid.New().String(),
			AccountID: accountID,
			Action:    actionLabel(st),
			Content:   response,
			CreatedAt: now,
		}
		if err := s.records.Append(ctx, record); err != nil {
			slog.Warn("ステージ記録の保存に失敗しました",
				slog.String("account_id", accountID),
				slog.String("action", record.Action),
				slog.String("error", err.Error()),
			)
		}
	}

	balance, err := s.ledger.Balance(ctx, accountID)
	if err != nil {
		balance = 0
	}

	return &Result{
		Stage:   st,
		State:   GateIdle,
		Cost:    cost,
		Balance: balance,
		Output:  response,
	}, nil
}
