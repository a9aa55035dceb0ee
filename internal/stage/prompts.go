package stage

import (
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/ronbun/internal/model"
)

// buildPrompt はステージとコンテキストからAIに渡す文脈とプロンプトを組み立てる。
// 各ステージは下流が必要とするコンテキストのスライスだけを参照する。
func buildPrompt(stage model.Stage, rc *model.ResearchContext, payload string) (systemContext, userPrompt string) {
	switch stage {
	case model.StageVariables:
		systemContext = "あなたは心理学の研究方法論の専門家です。"
		userPrompt = fmt.Sprintf(
			"研究主題: 「%s」\nこの主題のための変因構造（独立変因・従属変因・調整/媒介変因）を3つの案として提案してください。",
			payload,
		)

	case model.StageMethod:
		systemContext = "あなたは心理測定と統計分析の専門家です。"
		userPrompt = fmt.Sprintf(
			"変因構造:\n%s\n\n上記の変因を測定するための尺度（Scale）と統計分析手法を具体的に提案してください。",
			rc.Variables,
		)

	case model.StageLiterature:
		systemContext = "あなたは学術文献検索の専門家です。"
		userPrompt = fmt.Sprintf(
			"研究主題: %s\n変因: %s\n\nこの研究に関連する核心的な先行研究（2020年以降）を5件以上と主要な理論を挙げてください。各研究の著者・発表年・主要な結果が明確に分かるよう要約してください。",
			rc.Topic, rc.Variables,
		)

	case model.StageDraft:
		systemContext = "あなたはAPAスタイルの学術論文エディタです。"
		userPrompt = fmt.Sprintf(
			"[チャプター]: %s\n[先行研究データ]:\n%s\n\n上記の情報をもとに論文の「%s」パートを学術的に記述してください。引用表記（例: Kim, 2023）を正確に含めてください。",
			payload, literatureContext(rc), payload,
		)

	case model.StageReferences:
		systemContext = "あなたはAPA書誌情報の専門家です。"
		userPrompt = fmt.Sprintf(
			"[収集済みの原資料]:\n%s\n\n上記のテキストに言及されている全ての論文・著書を抽出し、APA第7版の様式に変換してください。著者名のアルファベット順に整列し、番号なしのリスト形式で出力してください。",
			literatureContext(rc),
		)

	case model.StageChat:
		systemContext = fmt.Sprintf(
			"あなたは研究支援アシスタントです。現在の研究コンテキスト:\n主題: %s\n変因: %s\n研究方法: %s",
			rc.Topic, rc.Variables, rc.Method,
		)
		userPrompt = payload
	}

	return systemContext, userPrompt
}

// literatureContext は検索結果と個別に収集した参考文献を1本のテキストにまとめる。
func literatureContext(rc *model.ResearchContext) string {
	var b strings.Builder
	b.WriteString(rc.LiteratureNotes)
	for _, ref := range rc.References {
		b.WriteString("\n- ")
		b.WriteString(ref.Title)
		if ref.URL != "" {
			b.WriteString(" (")
			b.WriteString(ref.URL)
			b.WriteString(")")
		}
		if ref.Summary != "" {
			b.WriteString(": ")
			b.WriteString(ref.Summary)
		}
	}
	return b.String()
}

// validateInput はステージ実行に必要な入力・前提コンテキストを検証する。
// 不足している場合はMissingInputエラーを返す。
func validateInput(stage model.Stage, rc *model.ResearchContext, payload string) error {
	switch stage {
	case model.StageVariables:
		if strings.TrimSpace(payload) == "" {
			return model.NewMissingInputError("topic")
		}
	case model.StageMethod:
		if strings.TrimSpace(rc.Variables) == "" {
			return model.NewMissingInputError("variables")
		}
	case model.StageLiterature:
		if strings.TrimSpace(rc.Topic) == "" {
			return model.NewMissingInputError("topic")
		}
	case model.StageDraft:
		if strings.TrimSpace(payload) == "" {
			return model.NewMissingInputError("section")
		}
	case model.StageReferences:
		if strings.TrimSpace(rc.LiteratureNotes) == "" && len(rc.References) == 0 {
			return model.NewMissingInputError("literature")
		}
	case model.StageChat:
		if strings.TrimSpace(payload) == "" {
			return model.NewMissingInputError("question")
		}
	}
	return nil
}

// applyResult はAI応答をコンテキストに書き戻す。
// AI呼び出しが成功した場合にのみ呼ばれる。失敗時にコンテキストが
// 部分的に変更されることはない。
func applyResult(stage model.Stage, rc *model.ResearchContext, payload, response string, at time.Time) {
	switch stage {
	case model.StageVariables:
		rc.Topic = payload
		rc.VariableOptions = response
	case model.StageMethod:
		rc.MethodOptions = response
	case model.StageLiterature:
		rc.LiteratureNotes = response
	case model.StageDraft:
		rc.Sections[payload] = response
	case model.StageReferences:
		rc.FormattedRefs = response
	case model.StageChat:
		rc.Chat = append(rc.Chat,
			model.ChatTurn{Role: "user", Content: payload, At: at},
			model.ChatTurn{Role: "assistant", Content: response, At: at},
		)
	}
}

// actionLabel はステージ記録に使う操作ラベルを返す。
func actionLabel(stage model.Stage) string {
	switch stage {
	case model.StageVariables:
		return "variables-suggested"
	case model.StageMethod:
		return "method-suggested"
	case model.StageLiterature:
		return "literature-searched"
	case model.StageDraft:
		return "draft-generated"
	case model.StageReferences:
		return "references-formatted"
	case model.StageChat:
		return "chat-answered"
	}
	return string(stage)
}
