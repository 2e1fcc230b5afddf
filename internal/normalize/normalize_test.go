package normalize

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/estimator/internal/llmjson"
	"github.com/sells-group/estimator/internal/model"
)

func TestNormalize_Scenario(t *testing.T) {
	t.Parallel()

	doc := llmjson.Parse("```json\n{\"items\":[{\"category\":\"shooting\",\"task\":\"Cameraman\",\"qty\":2,\"unit\":\"day\",\"unit_price\":80000,\"note\":\"\"}]}\n```")
	items := Normalize(doc.Items)

	require.Len(t, items, 2)
	assert.Equal(t, model.LineItem{
		Category:  model.CategoryShooting,
		Task:      "Cameraman",
		Quantity:  2,
		Unit:      model.UnitDay,
		UnitPrice: 80000,
	}, items[0])
	assert.Equal(t, model.CategoryManagementFee, items[1].Category)
	assert.Equal(t, int64(0), items[1].UnitPrice)
	assert.Equal(t, 1, model.ManagementRows(items))
}

func TestNormalize_EmptyUsesMinimalSet(t *testing.T) {
	t.Parallel()

	for _, raw := range [][]any{nil, {}, {"just a string", 42.0}} {
		items := Normalize(raw)
		require.Len(t, items, 3)
		assert.Equal(t, 1, model.ManagementRows(items))
		assert.True(t, items[2].IsManagementFee())
		assert.Positive(t, items[0].UnitPrice)
	}
}

func TestNormalize_KeepsExistingManagementRow(t *testing.T) {
	t.Parallel()

	raw := []any{
		map[string]any{"category": "管理費", "task": "管理費（固定）", "qty": 1, "unit": "式", "unit_price": 50000},
		map[string]any{"category": "撮影費", "task": "カメラマン", "qty": 1, "unit": "日", "unit_price": 80000},
	}
	items := Normalize(raw)
	require.Len(t, items, 2)
	assert.Equal(t, model.CategoryManagementFee, items[0].Category)
	assert.Equal(t, model.UnitLot, items[0].Unit)
	assert.Equal(t, int64(50000), items[0].UnitPrice)
}

func TestItem_Coercion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		obj        map[string]any
		wantQty    float64
		wantPrice  int64
		wantReview bool
	}{
		{
			name:    "numbers",
			obj:     map[string]any{"category": "misc", "qty": 1.5, "unit_price": 1000.9},
			wantQty: 1.5, wantPrice: 1001,
		},
		{
			name:    "numeric strings",
			obj:     map[string]any{"category": "misc", "qty": "2", "unit_price": "¥12,000"},
			wantQty: 2, wantPrice: 12000,
		},
		{
			name:    "full-width digits",
			obj:     map[string]any{"category": "misc", "qty": "３", "unit_price": "５０，０００円"},
			wantQty: 3, wantPrice: 50000,
		},
		{
			name:    "aliases",
			obj:     map[string]any{"category": "misc", "quantity": 4, "price": 500},
			wantQty: 4, wantPrice: 500,
		},
		{
			name:    "negative clamps to zero",
			obj:     map[string]any{"category": "misc", "qty": -2, "unit_price": -100},
			wantQty: 0, wantPrice: 0,
		},
		{
			name:       "garbage marks review",
			obj:        map[string]any{"category": "misc", "qty": "a few", "unit_price": "TBD"},
			wantQty:    0,
			wantPrice:  0,
			wantReview: true,
		},
		{
			name:       "missing price marks review",
			obj:        map[string]any{"category": "misc", "qty": 1},
			wantQty:    1,
			wantReview: true,
		},
		{
			name:    "management row exempt from review",
			obj:     map[string]any{"category": "management_fee"},
			wantQty: 0,
		},
		{
			name:    "bool counts as one",
			obj:     map[string]any{"category": "misc", "qty": true, "unit_price": 10},
			wantQty: 1, wantPrice: 10,
		},
		{
			name:    "fractional price string rounds",
			obj:     map[string]any{"category": "misc", "qty": 1, "unit_price": "99999.9"},
			wantQty: 1, wantPrice: 100000,
		},
		{
			name:    "price at ceiling kept",
			obj:     map[string]any{"category": "misc", "qty": 1, "unit_price": 1e10},
			wantQty: 1, wantPrice: 10000000000,
		},
		{
			name:       "price beyond int64 marks review",
			obj:        map[string]any{"category": "misc", "qty": 1, "unit_price": 1e20},
			wantQty:    1,
			wantPrice:  0,
			wantReview: true,
		},
		{
			name:       "huge price string marks review",
			obj:        map[string]any{"category": "misc", "qty": 1, "unit_price": "9" + strings.Repeat("0", 30)},
			wantQty:    1,
			wantPrice:  0,
			wantReview: true,
		},
		{
			name:       "huge quantity marks review",
			obj:        map[string]any{"category": "misc", "qty": 1e9, "unit_price": 500},
			wantQty:    0,
			wantPrice:  500,
			wantReview: true,
		},
		{
			name:    "management row with huge price zeroed",
			obj:     map[string]any{"category": "management_fee", "unit_price": 1e20},
			wantQty: 0,
		},
		{
			name:    "json number",
			obj:     map[string]any{"category": "misc", "qty": json.Number("2.5"), "unit_price": json.Number("300")},
			wantQty: 2.5, wantPrice: 300,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			li := Item(0, tt.obj)
			assert.InDelta(t, tt.wantQty, li.Quantity, 0.0001)
			assert.Equal(t, tt.wantPrice, li.UnitPrice)
			assert.GreaterOrEqual(t, li.UnitPrice, int64(0))
			assert.Equal(t, tt.wantReview, li.NeedsReview)
		})
	}
}

func TestItem_TextFields(t *testing.T) {
	t.Parallel()

	li := Item(0, map[string]any{"category": 7.0, "task": "  編集  ", "unit": "日間", "note": nil})
	assert.Equal(t, model.CategoryMisc, li.Category)
	assert.Equal(t, "編集", li.Task)
	assert.Equal(t, model.UnitDay, li.Unit)
	assert.Empty(t, li.Note)
}

func TestEnsureManagementFee(t *testing.T) {
	t.Parallel()

	in := []model.LineItem{{Category: model.CategoryShooting, UnitPrice: 100}}
	out := EnsureManagementFee(in)
	require.Len(t, out, 2)
	assert.Len(t, in, 1, "input must not be modified")
	assert.True(t, out[1].IsManagementFee())
	assert.Equal(t, 1.0, out[1].Quantity)

	again := EnsureManagementFee(out)
	assert.Len(t, again, 2)
}

func TestFallbackJSON_RoundTrips(t *testing.T) {
	t.Parallel()

	doc := llmjson.Parse(FallbackJSON(2, 3))
	assert.Equal(t, llmjson.StageStrict, doc.Stage)

	items := Normalize(doc.Items)
	assert.Equal(t, FallbackItems(2, 3), items)
}

func TestDetectDrift(t *testing.T) {
	t.Parallel()

	items := []model.LineItem{
		{Category: model.CategoryMisc, Task: "チラシ印刷"},
		{Category: model.CategoryShooting, Task: "カメラマン"},
	}
	assert.Equal(t, []string{"印刷", "チラシ"}, DetectDrift(items, ""))
	assert.Equal(t, []string{"Web"}, DetectDrift(nil, "Web公開用"))
	assert.Empty(t, DetectDrift([]model.LineItem{{Task: "編集"}}, "スタジオ撮影"))
}
