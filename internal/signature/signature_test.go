package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Error 404", "error <n>"},
		{"Table 'orders' doesn't exist", "table <v> doesn't exist"},
		{`Unknown column "user_id" in 'field list'`, "unknown column <v> in <v>"},
		{"Duplicate entry '42' for key 'PRIMARY'", "duplicate entry <v> for key <v>"},
		{"Table `shop`.`orders` is full", "table <v>.<v> is full"},
		{"Lock wait 50s on row 12 of 1000", "lock wait <n>s on row <n> of <n>"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate("DEADLOCK", "Deadlock found on row 17")
	for i := 0; i < 100; i++ {
		assert.Equal(t, a, Generate("DEADLOCK", "Deadlock found on row 17"))
	}
	assert.Len(t, string(a), Length)
	assert.True(t, Valid(string(a)))
}

// Pinned value guards against accidental changes to normalization or hashing,
// which would orphan every stored pattern.
func TestGenerate_Stable(t *testing.T) {
	assert.Equal(t, Signature("1b58d65eb97f"), Generate("TABLE_NOT_FOUND", "Table 'orders' doesn't exist"))
	assert.Equal(t, Signature("4ccb835b4295"), Generate("CONNECTION_ERROR", "Too many connections"))
}

func TestGenerate_Equivalence(t *testing.T) {
	t.Run("digit runs collapse", func(t *testing.T) {
		assert.Equal(t, Generate("UNKNOWN", "error 404"), Generate("UNKNOWN", "error 912"))
	})

	t.Run("quoted literals collapse", func(t *testing.T) {
		assert.Equal(t,
			Generate("TABLE_NOT_FOUND", "Table 'orders' doesn't exist"),
			Generate("TABLE_NOT_FOUND", "Table 'users' doesn't exist"))
	})

	t.Run("case insensitive", func(t *testing.T) {
		assert.Equal(t, Generate("DEADLOCK", "DEADLOCK FOUND"), Generate("DEADLOCK", "deadlock found"))
	})

	t.Run("kind participates", func(t *testing.T) {
		assert.NotEqual(t, Generate("TIMEOUT", "x"), Generate("DEADLOCK", "x"))
	})

	t.Run("unquoted identifiers differ", func(t *testing.T) {
		assert.NotEqual(t,
			Generate("TABLE_NOT_FOUND", "no such table: orders"),
			Generate("TABLE_NOT_FOUND", "no such table: users"))
	})
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("0123456789ab"))
	assert.False(t, Valid("0123456789AB"))
	assert.False(t, Valid("0123"))
	assert.False(t, Valid("../etc/passwd"))
}
