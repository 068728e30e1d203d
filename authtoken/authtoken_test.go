package authtoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBearer(t *testing.T) {
	t.Parallel()
	r := Parse("abc123@example.com")
	tok, ok := r.Get("example.com")
	assert.True(t, ok)
	assert.Equal(t, "Bearer abc123", tok.Header())
}

func TestParseBasic(t *testing.T) {
	t.Parallel()
	r := Parse("user:pass@example.com")
	tok, ok := r.Get("example.com")
	assert.True(t, ok)
	assert.Equal(t, "Basic dXNlcjpwYXNz", tok.Header())
}

func TestParseMultiple(t *testing.T) {
	t.Parallel()
	r := Parse("tok1@a.com;tok2@b.com")
	tok1, ok1 := r.Get("a.com")
	tok2, ok2 := r.Get("b.com")
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.Equal(t, "Bearer tok1", tok1.Header())
	assert.Equal(t, "Bearer tok2", tok2.Header())
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()
	r := Parse("")
	_, ok := r.Get("example.com")
	assert.False(t, ok)
}

func TestParseMalformedEntrySkipped(t *testing.T) {
	t.Parallel()
	r := Parse("garbage;tok@good.com")
	_, ok := r.Get("good.com")
	assert.True(t, ok)
}
