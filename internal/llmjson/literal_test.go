package llmjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLiteral(t *testing.T) {
	t.Parallel()

	v, err := ParseLiteral(`{'items': [{'task': "Director's fee", 'qty': 1_000, 'ok': True, 'n': None, 'r': -2.5e1,}], 'tags': ('a', 'b')}`)
	require.NoError(t, err)

	obj, ok := v.(map[string]any)
	require.True(t, ok)
	items := obj["items"].([]any)
	require.Len(t, items, 1)

	item := items[0].(map[string]any)
	assert.Equal(t, "Director's fee", item["task"])
	assert.InDelta(t, 1000.0, item["qty"], 0.0001)
	assert.Equal(t, true, item["ok"])
	assert.Nil(t, item["n"])
	assert.InDelta(t, -25.0, item["r"], 0.0001)
	assert.Equal(t, []any{"a", "b"}, obj["tags"])
}

func TestParseLiteral_Strings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: `'a\'b'`, want: "a'b"},
		{in: `"tab\tnew\nline"`, want: "tab\tnew\nline"},
		{in: `'\u7de8\u96c6'`, want: "編集"},
		{in: `'\x41'`, want: "A"},
		{in: `'撮影' '費'`, want: "撮影費"},
		{in: `'c:\path'`, want: `c:\path`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			v, err := ParseLiteral(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestParseLiteral_NumericKeys(t *testing.T) {
	t.Parallel()

	v, err := ParseLiteral(`{1: 'a', 2.5: 'b', None: 'c'}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"1": "a", "2.5": "b", "None": "c"}, v)
}

func TestParseLiteral_Rejects(t *testing.T) {
	t.Parallel()

	bad := []string{
		"",
		"__import__('os').system('ls')",
		"{'a': 1",
		"{'a' 1}",
		"[1, 2] extra",
		"'unterminated",
		"{'a': open('x')}",
		"1.2.3",
	}
	for _, in := range bad {
		_, err := ParseLiteral(in)
		assert.Error(t, err, in)
	}
}

func TestParseLiteral_DepthLimit(t *testing.T) {
	t.Parallel()

	deep := ""
	for i := 0; i < maxLiteralDepth+5; i++ {
		deep += "["
	}
	_, err := ParseLiteral(deep)
	assert.Error(t, err)
}
