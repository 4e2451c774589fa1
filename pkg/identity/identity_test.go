package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "runner@example.com", NormalizeEmail("  Runner@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestValidEmail(t *testing.T) {
	cases := map[string]bool{
		"runner@example.com":        true,
		" runner@example.com ":      true,
		"runner@localhost":          false,
		"Runner <runner@ex.com>":    false,
		"not-an-email":              false,
		"":                          false,
		"first.last+tag@sub.ex.org": true,
	}
	for in, want := range cases {
		assert.Equal(t, want, ValidEmail(in), in)
	}
}

func TestParseISODate(t *testing.T) {
	t.Run("accepts canonical dates", func(t *testing.T) {
		got, ok := ParseISODate(" 1990-01-15 ")
		assert.True(t, ok)
		assert.Equal(t, "1990-01-15", got)
	})

	t.Run("rejects other layouts and impossible days", func(t *testing.T) {
		for _, in := range []string{"15/01/1990", "1990-1-15", "1990-02-30", "1990-01-15T00:00:00Z", ""} {
			_, ok := ParseISODate(in)
			assert.False(t, ok, in)
		}
	})
}

func TestToISODateString(t *testing.T) {
	t.Run("ignores the attached location", func(t *testing.T) {
		loc := time.FixedZone("UTC-10", -10*60*60)
		d := time.Date(1990, 1, 15, 0, 0, 0, 0, loc)
		assert.Equal(t, "1990-01-15", ToISODateString(&d))
	})

	t.Run("nil renders empty", func(t *testing.T) {
		assert.Equal(t, "", ToISODateString(nil))
	})

	t.Run("stored and expected values compare exactly", func(t *testing.T) {
		d := time.Date(1990, 1, 15, 23, 30, 0, 0, time.UTC)
		assert.True(t, SameDate(ToISODateString(&d), "1990-01-15"))
		assert.False(t, SameDate("", ""))
	})
}
