package table

import (
	"testing"

	"github.com/kristofer/vela/pkg/value"
	"github.com/stretchr/testify/assert"
)

func str(s string) *value.ObjString {
	return &value.ObjString{Chars: s, Hash: value.HashString(s)}
}

func TestSetAndGet(t *testing.T) {
	var tab Table
	k := str("name")

	isNew := tab.Set(k, value.Number(42))
	assert.True(t, isNew)

	v, ok := tab.Get(k)
	assert.True(t, ok)
	assert.Equal(t, value.Number(42), v)
}

func TestSetExistingKeyIsNotNew(t *testing.T) {
	var tab Table
	k := str("name")

	tab.Set(k, value.Number(1))
	isNew := tab.Set(k, value.Number(2))
	assert.False(t, isNew)

	v, _ := tab.Get(k)
	assert.Equal(t, value.Number(2), v)
}

func TestDeleteThenGetMisses(t *testing.T) {
	var tab Table
	k := str("gone")
	tab.Set(k, value.Bool(true))

	assert.True(t, tab.Delete(k))
	_, ok := tab.Get(k)
	assert.False(t, ok)
}

func TestDeleteKeepsProbeChainReachable(t *testing.T) {
	var tab Table
	a := str("a")
	// b shares a's hash, so it is stored in the slot after a's.
	b := &value.ObjString{Chars: "b", Hash: a.Hash}
	tab.Set(a, value.Number(1))
	tab.Set(b, value.Number(2))

	tab.Delete(a)
	// b must still be reachable: the tombstone left by deleting a must not
	// terminate the probe sequence early.
	v, ok := tab.Get(b)
	assert.True(t, ok)
	assert.Equal(t, value.Number(2), v)
}

func TestFindStringLocatesInternedContent(t *testing.T) {
	var tab Table
	k := str("hello")
	tab.Set(k, value.Nil)

	found := tab.FindString("hello", value.HashString("hello"))
	assert.Same(t, k, found)

	assert.Nil(t, tab.FindString("nope", value.HashString("nope")))
}

func TestAddAllCopiesEntries(t *testing.T) {
	var from, to Table
	from.Set(str("x"), value.Number(1))
	from.Set(str("y"), value.Number(2))

	to.AddAll(&from)

	assert.Equal(t, 2, to.Count())
}

func TestRemoveWhiteDeletesUnmarkedKeys(t *testing.T) {
	var tab Table
	live, dead := str("live"), str("dead")
	live.SetMark(true)
	dead.SetMark(false)

	tab.Set(live, value.Nil)
	tab.Set(dead, value.Nil)

	tab.RemoveWhite()

	_, liveOK := tab.Get(live)
	_, deadOK := tab.Get(dead)
	assert.True(t, liveOK)
	assert.False(t, deadOK)
}

func TestGrowthPastLoadFactor(t *testing.T) {
	var tab Table
	for i := 0; i < 100; i++ {
		tab.Set(str(string(rune('a'+i%26))+string(rune(i))), value.Number(float64(i)))
	}
	assert.Equal(t, 100, tab.Count())
}
