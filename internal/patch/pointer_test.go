package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewstore/internal/record"
)

func TestPointer_EscapeRoundTrip(t *testing.T) {
	p := NewPointer("a/b", "c~d", "e")
	assert.Equal(t, "/a~1b/c~0d/e", p.String())

	parsed, err := ParsePointer(p.String())
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b", "c~d", "e"}, parsed.Segments())
	assert.True(t, p.Equal(parsed))
}

func TestParsePointer_Errors(t *testing.T) {
	_, err := ParsePointer("a/b")
	assert.Error(t, err, "missing leading slash")

	_, err = ParsePointer("/a~2")
	assert.Error(t, err, "invalid escape")

	_, err = ParsePointer("/a~")
	assert.Error(t, err, "dangling escape")
}

func TestParsePointer_Root(t *testing.T) {
	p, err := ParsePointer("")
	require.NoError(t, err)
	assert.True(t, p.IsRoot())
	assert.Equal(t, "", p.String())
}

func TestPointer_PushPop(t *testing.T) {
	root := Pointer{}
	p := root.Push("a").Push("b")

	assert.Equal(t, "/a/b", p.String())
	assert.Equal(t, "b", p.Last())
	assert.Equal(t, "/a", p.Pop().String())
	assert.True(t, p.Pop().Pop().IsRoot())
	assert.True(t, root.Pop().IsRoot())
	assert.True(t, root.IsRoot(), "push must not mutate the receiver")
}

func TestPointer_PushDoesNotAlias(t *testing.T) {
	base := NewPointer("a")
	x := base.Push("x")
	y := base.Push("y")
	assert.Equal(t, "/a/x", x.String())
	assert.Equal(t, "/a/y", y.String())
}

func TestPointer_Get(t *testing.T) {
	doc := record.Record{
		"a": map[string]any{"list": []any{"zero", map[string]any{"k": 1}}},
	}

	v, ok := MustParsePointer("/a/list/1/k").Get(doc)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = MustParsePointer("/a/list/5").Get(doc)
	assert.False(t, ok)

	_, ok = MustParsePointer("/a/missing").Get(doc)
	assert.False(t, ok)

	whole, ok := Pointer{}.Get(doc)
	require.True(t, ok)
	assert.Equal(t, doc, whole)
}

func TestPointer_TextMarshal(t *testing.T) {
	var p Pointer
	require.NoError(t, p.UnmarshalText([]byte("/x~1y")))
	assert.Equal(t, []string{"x/y"}, p.Segments())

	text, err := p.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "/x~1y", string(text))
}
