// Package sanitize cleans respondent answers before they reach routing or a conversation.
package sanitize

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxSize is 4KB.
	DefaultMaxSize = 4096
	// EnvMaxSize overrides the default limit.
	EnvMaxSize = "FORMWEAVE_MAX_ANSWER_SIZE"
)

var (
	ErrTooLarge    = errors.New("answer exceeds maximum allowed size")
	ErrInvalidUTF8 = errors.New("answer contains invalid UTF-8 sequences")
)

// Answer enforces the size limit, validates UTF-8 and strips control characters other
// than newline, tab and carriage return. A limit <= 0 means Limit().
// Oversized answers are rejected rather than truncated.
func Answer(input string, limit int) (string, error) {
	if limit <= 0 {
		limit = Limit()
	}
	if len(input) > limit {
		return "", fmt.Errorf("%w: size=%d limit=%d", ErrTooLarge, len(input), limit)
	}

	if !utf8.ValidString(input) {
		return "", ErrInvalidUTF8
	}

	if strings.IndexFunc(input, unsafeControl) < 0 {
		return input, nil
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if !unsafeControl(r) {
			b.WriteRune(r)
		}
	}
	return b.String(), nil
}

func unsafeControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r'
}

// Limit returns the size limit from EnvMaxSize, or DefaultMaxSize.
func Limit() int {
	if val := os.Getenv(EnvMaxSize); val != "" {
		if size, err := strconv.Atoi(val); err == nil && size > 0 {
			return size
		}
	}
	return DefaultMaxSize
}
