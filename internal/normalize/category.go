package normalize

import (
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/width"

	"github.com/sells-group/estimator/internal/model"
)

type categoryRule struct {
	category model.Category
	keywords []string
}

// Checked in order; the first rule with a matching keyword wins.
var categoryRules = []categoryRule{
	{model.CategoryEditingMA, []string{"edit", "編集", "ma費", "録音", "ナレーション収録"}},
	{model.CategoryCast, []string{"cast", "talent", "actor", "出演", "キャスト", "タレント"}},
	{model.CategoryShooting, []string{"shoot", "equipment", "camera", "studio", "撮影", "機材", "カメラ", "スタジオ", "照明"}},
	{model.CategoryPlanning, []string{"plan", "composition", "script", "企画", "構成", "台本", "絵コンテ"}},
	{model.CategoryManagementFee, []string{"management", "管理"}},
	{model.CategoryLabor, []string{"labor", "labour", "staff", "人件", "スタッフ", "プロデューサー", "ディレクター"}},
}

// "MA" (multi-audio mixing) only counts as a standalone token; a plain
// substring check would catch "camera" and "manager".
var reMA = regexp.MustCompile(`(^|[^A-Za-z])MA([^A-Za-z]|$)`)

// Category maps a free-text category onto the taxonomy. It accepts taxonomy
// keys, Japanese display labels, keys with a single typo, and finally falls
// back to keyword heuristics. Unrecognized text maps to misc.
func Category(raw string) model.Category {
	folded := strings.TrimSpace(width.Fold.String(raw))
	if folded == "" {
		return model.CategoryMisc
	}

	key := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(folded))
	if c := model.Category(key); c.Valid() {
		return c
	}
	if c, ok := model.CategoryFromLabel(folded); ok {
		return c
	}
	if c, ok := nearestCategory(key); ok {
		return c
	}

	if reMA.MatchString(folded) {
		return model.CategoryEditingMA
	}
	lower := strings.ToLower(folded)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return model.CategoryMisc
}

const minFuzzyKeyLen = 5

// nearestCategory accepts a key within edit distance 1 of a taxonomy key.
// Short keys are excluded on both sides so that words like "cost" are not
// pulled into "cast".
func nearestCategory(key string) (model.Category, bool) {
	if len(key) < minFuzzyKeyLen {
		return "", false
	}
	for _, c := range model.Categories {
		if len(c) < minFuzzyKeyLen {
			continue
		}
		if levenshtein.ComputeDistance(key, string(c)) <= 1 {
			return c, true
		}
	}
	return "", false
}

var unitAliases = map[string]string{
	"day":     model.UnitDay,
	"days":    model.UnitDay,
	"d":       model.UnitDay,
	"日":       model.UnitDay,
	"日間":      model.UnitDay,
	"lot":     model.UnitLot,
	"lots":    model.UnitLot,
	"set":     model.UnitLot,
	"式":       model.UnitLot,
	"一式":      model.UnitLot,
	"person":  model.UnitPerson,
	"persons": model.UnitPerson,
	"people":  model.UnitPerson,
	"名":       model.UnitPerson,
	"人":       model.UnitPerson,
	"hour":    model.UnitHour,
	"hours":   model.UnitHour,
	"hr":      model.UnitHour,
	"hrs":     model.UnitHour,
	"h":       model.UnitHour,
	"時間":      model.UnitHour,
	"cut":     model.UnitCut,
	"cuts":    model.UnitCut,
	"カット":     model.UnitCut,
	"unit":    model.UnitUnit,
	"units":   model.UnitUnit,
	"本":       model.UnitUnit,
	"個":       model.UnitUnit,
}

// Unit canonicalizes a unit label. Unknown labels are returned trimmed but
// otherwise unchanged.
func Unit(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if u, ok := unitAliases[strings.ToLower(width.Fold.String(trimmed))]; ok {
		return u
	}
	return trimmed
}
