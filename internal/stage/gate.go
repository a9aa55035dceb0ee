package stage

import (
	"sync"
	"time"

	"github.com/hitoshi/ronbun/internal/model"
)

// GateState は課金ゲートの状態を表す。
type GateState string

const (
	// GateIdle は確認待ちの操作が存在しない状態。
	GateIdle GateState = "idle"
	// GateAwaitingConfirmation は操作が確認待ちで滞留している状態。
	// 確定で残高減算と実行に進み、取り消しで残高を変更せずGateIdleに戻る。
	GateAwaitingConfirmation GateState = "awaiting_confirmation"
)

// PendingAction は確認待ちの操作1件を表す。
// 残高にはまだ一切触れていない。
type PendingAction struct {
	Stage    model.Stage
	Payload  string
	Cost     int
	StagedAt time.Time
}

// Gate はセッションごとの確認待ち操作を管理する。
// 1セッションにつき確認待ちは高々1件で、新しい操作の開始は
// 既存の確認待ちを置き換える。
type Gate struct {
	mu      sync.Mutex
	pending map[string]*PendingAction // セッションID → 確認待ち操作
}

// NewGate はGateを生成する。
func NewGate() *Gate {
	return &Gate{
		pending: make(map[string]*PendingAction),
	}
}

// Stage は操作を確認待ちとして滞留させる。既存の確認待ちは置き換えられる。
func (g *Gate) Stage(sessionID string, stage model.Stage, payload string, cost int) *PendingAction {
	g.mu.Lock()
	defer g.mu.Unlock()

	action := &PendingAction{
		Stage:    stage,
		Payload:  payload,
		Cost:     cost,
		StagedAt: time.Now(),
	}
	g.pending[sessionID] = action
	return action
}

// Cancel は確認待ち操作を破棄する。確認待ちが存在した場合はtrueを返す。
// 残高とコンテキストには一切影響しない。
func (g *Gate) Cancel(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, ok := g.pending[sessionID]
	delete(g.pending, sessionID)
	return ok
}

// Take は確認待ち操作を取り出して確認待ちを解消する。
// 確定処理の入口で呼び出す。取り出した時点でゲートはGateIdleに戻るため、
// 確定の成否にかかわらず確認待ちが残ることはない。
func (g *Gate) Take(sessionID string) (*PendingAction, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	action, ok := g.pending[sessionID]
	delete(g.pending, sessionID)
	return action, ok
}

// State は指定セッションのゲート状態を返す。
func (g *Gate) State(sessionID string) GateState {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.pending[sessionID]; ok {
		return GateAwaitingConfirmation
	}
	return GateIdle
}

// Peek は確認待ち操作を取り出さずに参照する。状態表示用。
func (g *Gate) Peek(sessionID string) (*PendingAction, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	action, ok := g.pending[sessionID]
	if !ok {
		return nil, false
	}
	c := *action
	return &c, true
}

// Drop はセッション破棄時に確認待ち操作ごと掃除する。
func (g *Gate) Drop(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.pending, sessionID)
}

// DeleteStale は滞留からttl以上経過した確認待ち操作を破棄し、件数を返す。
// 確定も取り消しもされずに放置された操作は残高に触れていないため、
// いつ破棄しても安全。
func (g *Gate) DeleteStale(ttl time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	purged := 0
	for sessionID, action := range g.pending {
		if action.StagedAt.Before(cutoff) {
			delete(g.pending, sessionID)
			purged++
		}
	}
	return purged
}
