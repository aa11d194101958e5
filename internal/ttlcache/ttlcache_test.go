package ttlcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkAndIsFresh(t *testing.T) {
	c := New()
	assert.False(t, c.IsFresh("/"))

	c.MarkFresh("/")
	assert.True(t, c.IsFresh("/"))
}

func TestInvalidateClearsFreshness(t *testing.T) {
	c := New()
	c.MarkFresh("/a")
	c.Invalidate("/a")
	assert.False(t, c.IsFresh("/a"))
}

func TestInvalidateUnknownKeyIsNoop(t *testing.T) {
	c := New()
	c.Invalidate("/never-marked")
	assert.False(t, c.IsFresh("/never-marked"))
}

func TestResetClearsAllKeys(t *testing.T) {
	c := New()
	c.MarkFresh("/a")
	c.MarkFresh("/b")

	c.Reset()

	assert.False(t, c.IsFresh("/a"))
	assert.False(t, c.IsFresh("/b"))
}

func TestKeysAreIndependent(t *testing.T) {
	c := New()
	c.MarkFresh("/a")
	assert.False(t, c.IsFresh("/b"))
}
