package employee

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	passwordLength   = 8
	maxEmailAttempts = 100
	passwordAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var titleCaser = cases.Title(language.English)

// NormalizeName trims, collapses inner whitespace and title-cases a name.
func NormalizeName(raw string) string {
	return titleCaser.String(strings.Join(strings.Fields(raw), " "))
}

// GeneratePassword derives the initial password from the employee's initials
// and hire date (yyMMdd), padded with zeros to eight characters. Without a
// hire date it falls back to eight random characters.
func GeneratePassword(firstName, lastName string, hireDate *time.Time) (string, error) {
	if hireDate == nil {
		return randomPassword()
	}
	password := initial(firstName) + initial(lastName) + hireDate.Format("060102")
	for len(password) < passwordLength {
		password += "0"
	}
	return password[:passwordLength], nil
}

func initial(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" || s[0] >= utf8.RuneSelf {
		return "x"
	}
	return s[:1]
}

func randomPassword() (string, error) {
	limit := big.NewInt(int64(len(passwordAlphabet)))
	var b strings.Builder
	for i := 0; i < passwordLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(passwordAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// emailLocal lowercases a name part and drops anything that cannot appear
// in a mailbox name.
func emailLocal(part string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(part) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "x"
	}
	return b.String()
}

// EmailCandidate returns first.last@domain for attempt 0 and
// first.last<attempt>@domain after that.
func EmailCandidate(firstName, lastName, domain string, attempt int) string {
	local := emailLocal(firstName) + "." + emailLocal(lastName)
	if attempt > 0 {
		local += strconv.Itoa(attempt)
	}
	return local + "@" + domain
}
