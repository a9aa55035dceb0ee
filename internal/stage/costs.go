package stage

import "github.com/hitoshi/ronbun/internal/model"

// CostTable はステージごとの消費エネルギーを保持する。
type CostTable map[model.Stage]int

// DefaultCosts は既定のコスト表を返す。
// 高コスト操作（草稿作成・文献検索）ほど高く、チャットは最も安い。
func DefaultCosts() CostTable {
	return CostTable{
		model.StageVariables:  50,
		model.StageMethod:     50,
		model.StageLiterature: 100,
		model.StageDraft:      100,
		model.StageReferences: 50,
		model.StageChat:       10,
	}
}

// Cost は指定ステージのコストを返す。未定義のステージは0を返す。
func (t CostTable) Cost(stage model.Stage) int {
	return t[stage]
}

// RequiresConfirmation は指定ステージが確定前の確認往復を必要とするかを返す。
// チャットのみ摩擦を下げるため即時実行とし、それ以外は
// コスト提示→確認→実行の往復を挟む。
func RequiresConfirmation(stage model.Stage) bool {
	return stage != model.StageChat
}
