// Package model はドメインモデルを定義する。
package model

import "time"

// Stage はガイド付きワークフローの1段階を表す。
type Stage string

const (
	// StageVariables は変因構造の提案・確定ステージ。
	StageVariables Stage = "variables"
	// StageMethod は研究方法（尺度・統計手法）の提案・確定ステージ。
	StageMethod Stage = "method"
	// StageLiterature は先行研究検索ステージ。
	StageLiterature Stage = "literature"
	// StageDraft は論文セクションの草稿作成ステージ。
	StageDraft Stage = "draft"
	// StageReferences は参考文献のAPA整形ステージ。
	StageReferences Stage = "references"
	// StageChat は自由質問チャットステージ。確認なしで即時実行される。
	StageChat Stage = "chat"
)

// ValidStage はステージ名が定義済みかを検証する。
func ValidStage(s Stage) bool {
	switch s {
	case StageVariables, StageMethod, StageLiterature, StageDraft, StageReferences, StageChat:
		return true
	}
	return false
}

// Reference は収集済みの参考文献1件を表す。
// Sourceは取得経路（"search", "url", "arxiv"）を示す。
type Reference struct {
	Title   string
	URL     string
	Summary string
	Source  string
	AddedAt time.Time
}

// ChatTurn はチャット履歴の1往復分を表す。
type ChatTurn struct {
	Role    string // "user" または "assistant"
	Content string
	At      time.Time
}

// ResearchContext はセッション内で育てていく研究成果物の集合を表す。
// ステージ操作が書き込み、下流ステージとAI呼び出しの文脈として読み出される。
// セッション単位で保持され、アカウント間で共有されることはない。
type ResearchContext struct {
	Topic           string
	VariableOptions string // AIが提案した変因構造の候補
	Variables       string // 利用者が確定した変因構造
	MethodOptions   string // AIが提案した研究方法の候補
	Method          string // 利用者が確定した研究方法
	LiteratureNotes string // 先行研究検索の生の結果。下流ステージの文脈になる
	References      []Reference
	FormattedRefs   string            // APA整形済みの参考文献リスト
	Sections        map[string]string // セクション名 → 草稿本文
	Chat            []ChatTurn
	UpdatedAt       time.Time
}

// NewResearchContext は空のResearchContextを生成する。
// UpdatedAtは生成時刻で初期化される。放置セッションの掃除が
// この時刻を基準にするため、ゼロ値のままにしない。
func NewResearchContext() *ResearchContext {
	return &ResearchContext{
		Sections:  make(map[string]string),
		UpdatedAt: time.Now(),
	}
}

// Clone はResearchContextの深いコピーを返す。
// ゲート確定前のプレビューやAPI応答用のスナップショットに使用する。
func (rc *ResearchContext) Clone() *ResearchContext {
	c := &ResearchContext{
		Topic:           rc.Topic,
		VariableOptions: rc.VariableOptions,
		Variables:       rc.Variables,
		MethodOptions:   rc.MethodOptions,
		Method:          rc.Method,
		LiteratureNotes: rc.LiteratureNotes,
		References:      make([]Reference, len(rc.References)),
		FormattedRefs:   rc.FormattedRefs,
		Sections:        make(map[string]string, len(rc.Sections)),
		Chat:            make([]ChatTurn, len(rc.Chat)),
		UpdatedAt:       rc.UpdatedAt,
	}
	copy(c.References, rc.References)
	copy(c.Chat, rc.Chat)
	for k, v := range rc.Sections {
		c.Sections[k] = v
	}
	return c
}
