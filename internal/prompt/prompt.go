// Package prompt builds the model prompts for item generation and the
// optional normalization pass.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/sells-group/estimator/internal/model"
)

const generateTemplate = `あなたは広告映像制作の見積り項目を作成するエキスパートです。
以下の条件を満たし、**JSONのみ**を返してください。

【案件条件】
- 尺: {{or .Duration "未定"}}
- 本数: {{.Versions}}本
- 撮影日数: {{.ShootDays}}日 / 編集日数: {{.EditDays}}日
- 納品希望日: {{.DeliveryDate}}
- キャスト: メイン{{.CastMain}}人 / エキストラ{{.CastExtra}}人 / タレント: {{yesno .Talent}}
- スタッフ候補: {{join .StaffRoles "未指定"}}
- 撮影場所: {{or .Location "未定"}}
- 撮影機材: {{join .Equipment "未指定"}}
- 美術装飾: {{or .SetDesign "なし"}}
- CG: {{yesno .CG}} / ナレーション: {{yesno .Narration}} / 音楽: {{or .Music "未定"}} / MA: {{yesno .MA}}
- 納品形式: {{join .Deliverables "未指定"}}
- 字幕: {{join .SubtitleLangs "なし"}}
- 使用地域: {{or .UsageRegion "未定"}} / 使用期間: {{or .UsagePeriod "未定"}}
- 参考予算: {{or .BudgetHint "未設定"}}
- 備考: {{or .Notes "特になし"}}

【出力仕様】
{{format}}`

const normalizeTemplate = `次のJSONを検査・正規化してください。返答は**修正済みJSONのみ**で、説明は不要です。
- スキーマ外キー削除、欠損補完
- category 正規化（{{categories "/"}}）
- 単位正規化、同義項目統合、管理費は固定1行
【入力JSON】
{{.}}`

var funcs = template.FuncMap{
	"yesno": func(b bool) string {
		if b {
			return "あり"
		}
		return "なし"
	},
	"join": func(vs []string, empty string) string {
		if len(vs) == 0 {
			return empty
		}
		return strings.Join(vs, ", ")
	},
	"categories": categoryList,
	"format":     outputFormat,
}

var (
	generateTmpl  = template.Must(template.New("generate").Funcs(funcs).Parse(generateTemplate))
	normalizeTmpl = template.Must(template.New("normalize").Funcs(funcs).Parse(normalizeTemplate))
)

func categoryList(sep string) string {
	labels := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		labels[i] = c.Label()
	}
	return strings.Join(labels, sep)
}

func outputFormat() string {
	quoted := make([]string, len(model.Categories))
	for i, c := range model.Categories {
		quoted[i] = "「" + c.Label() + "」"
	}
	return fmt.Sprintf(`- JSON 1オブジェクト、ルートは items 配列のみ。
- 各要素キー: category / task / qty / unit / unit_price / note
- category は%sいずれか。
- 管理費は固定1行（task=管理費（固定）, qty=1, unit=式）。
- 合計/税/HTMLなどは出力しない。`, strings.Join(quoted, ""))
}

// Generate returns the item generation prompt for a job.
func Generate(job model.Job) string {
	var b strings.Builder
	// The templates are fixed and every field is a plain value, so Execute
	// cannot fail on a Job.
	_ = generateTmpl.Execute(&b, job)
	return b.String()
}

// Normalize returns the prompt asking the model to clean up its own items
// JSON.
func Normalize(itemsJSON string) string {
	var b strings.Builder
	_ = normalizeTmpl.Execute(&b, itemsJSON)
	return b.String()
}
