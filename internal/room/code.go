package room

import (
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// CodeLength - длина кода комнаты
const CodeLength = 4

var (
	ErrBadCode = errors.New("room code must be 4 letters or digits")

	codeRe = regexp.MustCompile(`^[A-Z0-9]{4}$`)

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NormalizeCode trims and upper-cases user input. Validation happens before
// any store access.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !codeRe.MatchString(code) {
		return "", ErrBadCode
	}
	return code, nil
}

// NewCode generates a shareable room code.
func NewCode() string {
	id := uuid.New()
	var b strings.Builder
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(codeAlphabet[int(id[i])%len(codeAlphabet)])
	}
	return b.String()
}
