package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswer_SizeLimit(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"Under Limit", DefaultMaxSize - 1, false},
		{"Exact Limit", DefaultMaxSize, false},
		{"Over Limit", DefaultMaxSize + 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Answer(strings.Repeat("a", tt.size), 0)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTooLarge)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAnswer_ControlChars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Normal Text", "Hello World", "Hello World"},
		{"Safe Controls", "Line1\nLine2\tTabbed\r", "Line1\nLine2\tTabbed\r"},
		{"ANSI Code", "\x1b[31mRed\x1b[0m", "[31mRed[0m"},
		{"Null Byte", "Null\x00Byte", "NullByte"},
		{"Bell", "Ding\x07", "Ding"},
		{"Unicode", "olá 👋", "olá 👋"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Answer(tt.input, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAnswer_InvalidUTF8(t *testing.T) {
	_, err := Answer("bad \xff byte", 0)
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestAnswer_ExplicitLimit(t *testing.T) {
	_, err := Answer("12345678901", 10)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestLimit_EnvOverride(t *testing.T) {
	t.Setenv(EnvMaxSize, "10")
	assert.Equal(t, 10, Limit())

	_, err := Answer("12345678901", 0)
	assert.ErrorIs(t, err, ErrTooLarge)
	_, err = Answer("12345", 0)
	assert.NoError(t, err)

	t.Setenv(EnvMaxSize, "-1")
	assert.Equal(t, DefaultMaxSize, Limit())
}
