package normalize

import (
	"encoding/json"

	"github.com/sells-group/estimator/internal/model"
)

const (
	fallbackNote      = "fallback"
	managementFeeTask = "管理費（固定）"
)

// MinimalItems is the set substituted when nothing usable came back from the
// model. The management fee is left at zero for the calculator to fill.
func MinimalItems() []model.LineItem {
	return []model.LineItem{
		{Category: model.CategoryShooting, Task: "撮影スタッフ・機材", Quantity: 1, Unit: model.UnitDay, UnitPrice: 150000, Note: fallbackNote},
		{Category: model.CategoryEditingMA, Task: "編集", Quantity: 2, Unit: model.UnitDay, UnitPrice: 70000, Note: fallbackNote},
		{Category: model.CategoryManagementFee, Task: managementFeeTask, Quantity: 1, Unit: model.UnitLot, Note: fallbackNote},
	}
}

// FallbackItems is the estimate used when the completion call itself fails.
// Shooting and editing quantities follow the job.
func FallbackItems(shootDays, editDays int) []model.LineItem {
	return []model.LineItem{
		{Category: model.CategoryLabor, Task: "制作プロデューサー", Quantity: 1, Unit: model.UnitDay, UnitPrice: 80000, Note: fallbackNote},
		{Category: model.CategoryShooting, Task: "カメラマン", Quantity: float64(shootDays), Unit: model.UnitDay, UnitPrice: 80000, Note: fallbackNote},
		{Category: model.CategoryEditingMA, Task: "編集", Quantity: float64(editDays), Unit: model.UnitDay, UnitPrice: 70000, Note: fallbackNote},
		{Category: model.CategoryManagementFee, Task: managementFeeTask, Quantity: 1, Unit: model.UnitLot, UnitPrice: 120000, Note: fallbackNote},
	}
}

type wireItem struct {
	Category  string  `json:"category"`
	Task      string  `json:"task"`
	Quantity  float64 `json:"qty"`
	Unit      string  `json:"unit"`
	UnitPrice int64   `json:"unit_price"`
	Note      string  `json:"note"`
}

// FallbackJSON renders FallbackItems in the same shape the model is asked to
// produce, so the failure path runs through the normal parse step.
func FallbackJSON(shootDays, editDays int) string {
	return ItemsJSON(FallbackItems(shootDays, editDays))
}

// ItemsJSON renders items as a {"items": [...]} document with display labels
// for categories.
func ItemsJSON(items []model.LineItem) string {
	doc := struct {
		Items []wireItem `json:"items"`
	}{Items: make([]wireItem, 0, len(items))}

	for _, it := range items {
		doc.Items = append(doc.Items, wireItem{
			Category:  it.Category.Label(),
			Task:      it.Task,
			Quantity:  it.Quantity,
			Unit:      it.Unit,
			UnitPrice: it.UnitPrice,
			Note:      it.Note,
		})
	}

	// Marshal of plain strings and numbers cannot fail.
	b, _ := json.Marshal(doc)
	return string(b)
}

// EnsureManagementFee appends a zero-priced management fee row when items has
// none. The input slice is not modified.
func EnsureManagementFee(items []model.LineItem) []model.LineItem {
	if model.ManagementRows(items) > 0 {
		return items
	}
	out := make([]model.LineItem, len(items), len(items)+1)
	copy(out, items)
	return append(out, model.LineItem{
		Category: model.CategoryManagementFee,
		Task:     managementFeeTask,
		Quantity: 1,
		Unit:     model.UnitLot,
	})
}
