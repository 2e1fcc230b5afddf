package llmjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "json tag", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "bare fence", in: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "no fence", in: `  {"a":1}  `, want: `{"a":1}`},
		{name: "only opening", in: "```json\n{\"a\":1}", want: `{"a":1}`},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		wantLen   int
		wantStage Stage
	}{
		{
			name:      "fenced strict json",
			in:        "```json\n{\"items\":[{\"category\":\"shooting\",\"task\":\"Cameraman\",\"qty\":2,\"unit\":\"day\",\"unit_price\":80000,\"note\":\"\"}]}\n```",
			wantLen:   1,
			wantStage: StageStrict,
		},
		{
			name:      "prose around object",
			in:        "Here is your estimate:\n{\"items\":[{\"task\":\"a\"},{\"task\":\"b\"}]}\nLet me know!",
			wantLen:   2,
			wantStage: StageRepaired,
		},
		{
			name:      "trailing commas",
			in:        `{"items":[{"task":"a","qty":1,},{"task":"b",},],}`,
			wantLen:   2,
			wantStage: StageRepaired,
		},
		{
			name:      "python keywords with double quotes",
			in:        `{"items":[{"task":"a","flag":True,"note":None}]}`,
			wantLen:   1,
			wantStage: StageRepaired,
		},
		{
			name:      "single quotes only",
			in:        `{'items': [{'task': 'a', 'qty': 2}]}`,
			wantLen:   1,
			wantStage: StageRepaired,
		},
		{
			name:      "mixed quotes need literal evaluation",
			in:        `{'items': [{'task': "Director's cut", 'qty': 1}]}`,
			wantLen:   1,
			wantStage: StageLiteral,
		},
		{
			name:      "truncated mid item",
			in:        `{"items":[{"task":"a","qty":1},{"task":"b","qty":2},{"task":"c","un`,
			wantLen:   2,
			wantStage: StageTruncated,
		},
		{
			name:      "result.items placement",
			in:        `{"result":{"items":[{"task":"a"}]}}`,
			wantLen:   1,
			wantStage: StageStrict,
		},
		{
			name:      "data placement",
			in:        `{"data":[{"task":"a"},{"task":"b"},{"task":"c"}]}`,
			wantLen:   3,
			wantStage: StageStrict,
		},
		{
			name:      "object without items",
			in:        `{"total": 100000}`,
			wantLen:   0,
			wantStage: StageStrict,
		},
		{
			name:      "items not a list",
			in:        `{"items": "none"}`,
			wantLen:   0,
			wantStage: StageStrict,
		},
		{
			name:      "top-level array",
			in:        `[{"task":"a"}]`,
			wantLen:   0,
			wantStage: StageRepaired,
		},
		{
			name:      "apology",
			in:        "Sorry, I can't help with that.",
			wantLen:   0,
			wantStage: StageNone,
		},
		{
			name:      "empty",
			in:        "",
			wantLen:   0,
			wantStage: StageNone,
		},
		{
			name:      "only fences",
			in:        "```json\n```",
			wantLen:   0,
			wantStage: StageNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc := Parse(tt.in)
			require.NotNil(t, doc.Items)
			assert.Len(t, doc.Items, tt.wantLen)
			assert.Equal(t, tt.wantStage, doc.Stage)
		})
	}
}

func TestParse_PreservesValues(t *testing.T) {
	t.Parallel()

	doc := Parse("```json\n{\"items\":[{\"category\":\"shooting\",\"task\":\"Cameraman\",\"qty\":2,\"unit\":\"day\",\"unit_price\":80000}]}\n```")
	require.Len(t, doc.Items, 1)

	item, ok := doc.Items[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "shooting", item["category"])
	assert.Equal(t, "Cameraman", item["task"])
	assert.InDelta(t, 2.0, item["qty"], 0.0001)
	assert.InDelta(t, 80000.0, item["unit_price"], 0.0001)
}

func TestParse_TruncatedKeepsCompleteItems(t *testing.T) {
	t.Parallel()

	doc := Parse("```json\n{\"items\":[{\"task\":\"撮影\",\"qty\":1},{\"task\":\"編集\",\"qty\":3}")
	require.Len(t, doc.Items, 2)
	second := doc.Items[1].(map[string]any)
	assert.Equal(t, "編集", second["task"])
}

func TestCloseTruncated(t *testing.T) {
	t.Parallel()

	out, ok := closeTruncated(`{"items":[{"a":1},{"b":2},{"c":`)
	require.True(t, ok)
	assert.Equal(t, `{"items":[{"a":1},{"b":2}]}`, out)

	_, ok = closeTruncated(`{"items":[]}`)
	assert.False(t, ok, "complete object needs no repair")

	_, ok = closeTruncated(`{"items":[`)
	assert.False(t, ok, "nothing complete to keep")

	_, ok = closeTruncated("no braces here")
	assert.False(t, ok)
}

func TestRepair(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `{"a":[1,2]}`, repair(`{"a":[1,2,],}`))
	assert.Equal(t, `{"a":true,"b":false,"c":null}`, repair(`{"a":True,"b":False,"c":None}`))
	assert.Equal(t, `{"a":"x"}`, repair(`{'a':'x'}`))
	// Mixed quoting is left alone; swapping would break the apostrophe.
	assert.Equal(t, `{"a":"it's"}`, repair(`{"a":"it's"}`))
}
