package tags_test

import (
	"path/filepath"
	"testing"

	"github.com/lmapd/lmapd/internal/tags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListOrderingAndDedup(t *testing.T) {
	l := tags.New("b", "a", "b", "c")
	require.Equal(t, []string{"b", "a", "c"}, l.Values())
	assert.True(t, l.Has("a"))
	assert.False(t, l.Has("z"))
}

func TestListAddReturnsWhetherNew(t *testing.T) {
	l := tags.New()
	assert.True(t, l.Add("x"))
	assert.False(t, l.Add("x"))
	assert.Equal(t, 1, l.Len())
}

func TestConcatPreservesOrderAcrossLists(t *testing.T) {
	task := tags.New("t1", "shared")
	schedule := tags.New("s1")
	action := tags.New("shared", "a1")

	out := tags.Concat(task, schedule, action)
	assert.Equal(t, []string{"t1", "shared", "s1", "a1"}, out.Values())
}

func TestMatchAny(t *testing.T) {
	l := tags.New("red", "blue")
	matched := l.MatchAny([]string{"r*"}, func(pattern, name string) bool {
		ok, _ := filepath.Match(pattern, name)
		return ok
	})
	assert.True(t, matched)

	notMatched := l.MatchAny([]string{"g*"}, func(pattern, name string) bool {
		ok, _ := filepath.Match(pattern, name)
		return ok
	})
	assert.False(t, notMatched)
}
