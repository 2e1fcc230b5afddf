// Package render formats priced estimates for people: an HTML fragment for
// the web view and a text table for the terminal.
package render

import (
	"bytes"
	"html/template"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/estimator/internal/model"
	"github.com/sells-group/estimator/internal/pricing"
)

// Disclaimer closes every rendered quote.
const Disclaimer = "※本見積書は自動生成された概算です。実制作内容・条件により金額が増減します。"

const htmlTemplate = `<p>以下は、映像制作にかかる各種費用をカテゴリごとに整理した概算見積書です。</p>
<p>短納期係数：{{.Rush}} ／ 管理費上限：{{.CapPercent}}% ／ 消費税率：{{.TaxPercent}}%</p>
<table border="1" cellspacing="0" cellpadding="6" style="border-collapse:collapse;width:100%">
<thead><tr><th style="text-align:left">カテゴリ</th><th style="text-align:left">項目</th><th style="text-align:right">単価</th><th style="text-align:left">数量</th><th style="text-align:left">単位</th><th style="text-align:right">金額（円）</th></tr></thead>
<tbody>
{{- range .Rows}}
{{- if .Group}}
<tr><td colspan="6" style="text-align:left;background:#f6f6f6;font-weight:bold">{{.Category}}</td></tr>
{{- end}}
<tr{{if .Review}} class="needs-review"{{end}}><td>{{.Category}}</td><td>{{.Task}}</td><td style="text-align:right">{{.UnitPrice}}</td><td>{{.Qty}}</td><td>{{.Unit}}</td><td style="text-align:right">{{.Amount}}</td></tr>
{{- end}}
</tbody></table>
<p><b>小計（税抜）</b>：{{.Taxable}}円　／　<b>消費税</b>：{{.Tax}}円　／　<b>合計</b>：<span style="color:red">{{.Total}}円</span></p>
<p>{{.Disclaimer}}</p>
`

var quoteTmpl = template.Must(template.New("quote").Parse(htmlTemplate))

type htmlRow struct {
	Group     bool
	Category  string
	Task      string
	UnitPrice string
	Qty       string
	Unit      string
	Amount    string
	Review    bool
}

type htmlView struct {
	Rush       string
	CapPercent int
	TaxPercent int
	Rows       []htmlRow
	Taxable    string
	Tax        string
	Total      string
	Disclaimer string
}

// HTML renders a priced estimate as an HTML fragment. A group header row is
// emitted whenever the category changes from the previous row. Task and
// unit text is escaped.
func HTML(items []model.LineItem, totals model.Totals, rates pricing.Rates) (string, error) {
	view := htmlView{
		Rush:       strconv.FormatFloat(totals.RushCoefficient, 'f', 2, 64),
		CapPercent: percent(rates.ManagementCapRate),
		TaxPercent: percent(rates.TaxRate),
		Taxable:    Yen(totals.TaxableSubtotal),
		Tax:        Yen(totals.Tax),
		Total:      Yen(totals.Total),
		Disclaimer: Disclaimer,
	}

	var current model.Category
	for i, it := range items {
		view.Rows = append(view.Rows, htmlRow{
			Group:     i == 0 || it.Category != current,
			Category:  it.Category.Label(),
			Task:      it.Task,
			UnitPrice: Yen(it.UnitPrice),
			Qty:       Quantity(it.Quantity),
			Unit:      it.Unit,
			Amount:    Yen(it.Subtotal),
			Review:    it.NeedsReview,
		})
		current = it.Category
	}

	var buf bytes.Buffer
	if err := quoteTmpl.Execute(&buf, view); err != nil {
		return "", eris.Wrap(err, "render: execute html template")
	}
	return buf.String(), nil
}

var yenPrinter = message.NewPrinter(language.Japanese)

// Yen formats an amount with thousands separators.
func Yen(v int64) string {
	return yenPrinter.Sprintf("%d", v)
}

// Quantity formats a quantity without trailing zeros.
func Quantity(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func percent(rate float64) int {
	return int(math.Round(rate * 100))
}
