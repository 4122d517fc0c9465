package http1

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeader(t *testing.T) {
	t.Run("GetIsCaseInsensitive", func(t *testing.T) {
		var h Header
		h.Add("Content-Type", "text/html")
		assert.Equal(t, "text/html", h.Get("content-type"))
		assert.Equal(t, "", h.Get("missing"))
		assert.False(t, h.Has("missing"))
	})

	t.Run("SetReplacesFirstAndDropsDuplicates", func(t *testing.T) {
		var h Header
		h.Add("A", "1")
		h.Add("X", "old")
		h.Add("B", "2")
		h.Add("x", "dup")

		h.Set("X", "new")
		assert.Equal(t, Header{{"A", "1"}, {"X", "new"}, {"B", "2"}}, h)
	})

	t.Run("SetAppendsWhenAbsent", func(t *testing.T) {
		var h Header
		h.Add("A", "1")
		h.Set("B", "2")
		assert.Equal(t, Header{{"A", "1"}, {"B", "2"}}, h)
	})

	t.Run("DelRemovesAll", func(t *testing.T) {
		var h Header
		h.Add("A", "1")
		h.Add("a", "2")
		h.Add("B", "3")
		h.Del("A")
		assert.Equal(t, Header{{"B", "3"}}, h)
	})
}
