package normalize

import (
	"strings"

	"github.com/sells-group/estimator/internal/model"
)

// DriftKeywords mark costs from outside video production (print, delivery,
// web) that models sometimes add to a video estimate.
var DriftKeywords = []string{"印刷", "チラシ", "フライヤ", "ポスター", "配送", "配布", "Web", "ウェブ", "サイト制作", "DM", "封入", "折込"}

// DetectDrift returns the drift keywords found in the job notes or in any
// item's category, task or note, in DriftKeywords order.
func DetectDrift(items []model.LineItem, notes string) []string {
	var b strings.Builder
	b.WriteString(notes)
	for _, it := range items {
		b.WriteByte(' ')
		b.WriteString(string(it.Category))
		b.WriteByte(' ')
		b.WriteString(it.Task)
		b.WriteByte(' ')
		b.WriteString(it.Note)
	}
	src := b.String()

	var found []string
	for _, kw := range DriftKeywords {
		if strings.Contains(src, kw) {
			found = append(found, kw)
		}
	}
	return found
}
