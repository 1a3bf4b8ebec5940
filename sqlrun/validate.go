package sqlrun

import (
	"fmt"
	"regexp"
	"strings"
)

// forbidden matches statement keywords that modify data or schema, or
// that escape a plain selection (EXEC, PRAGMA, SELECT ... INTO). Matching
// runs against the normalized statement, so occurrences inside comments
// and string literals do not count; an identifier that happens to equal a
// keyword is rejected too, which is the safe default for ambiguous input.
var forbidden = regexp.MustCompile(`\b(INSERT|UPDATE|DELETE|DROP|ALTER|TRUNCATE|CREATE|REPLACE|MERGE|GRANT|REVOKE|EXEC|EXECUTE|CALL|ATTACH|DETACH|PRAGMA|VACUUM|COPY|SET|INTO)\b`)

// Validate rejects anything that is not a single read-only selection
// statement. It never contacts a database.
func Validate(sqlText string) error {
	normalized := normalize(sqlText)
	normalized = strings.TrimSpace(normalized)
	for strings.HasSuffix(normalized, ";") {
		normalized = strings.TrimSpace(strings.TrimSuffix(normalized, ";"))
	}

	if normalized == "" {
		return fmt.Errorf("empty statement")
	}
	if strings.Contains(normalized, ";") {
		return fmt.Errorf("multiple statements are not allowed")
	}

	upper := strings.ToUpper(normalized)
	first := firstWord(upper)
	if first != "SELECT" && first != "WITH" {
		return fmt.Errorf("only SELECT statements are allowed, got %q", first)
	}
	if first == "WITH" && !strings.Contains(upper, "SELECT") {
		return fmt.Errorf("WITH clause without a SELECT")
	}

	if m := forbidden.FindString(upper); m != "" {
		return fmt.Errorf("forbidden keyword %q", m)
	}
	return nil
}

// normalize strips comments and single-quoted string literals so the
// keyword scan cannot be fooled by their contents.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], "--"):
			// Line comment: skip to end of line.
			for i < len(s) && s[i] != '\n' {
				i++
			}
		case strings.HasPrefix(s[i:], "/*"):
			// Block comment: skip to closing marker.
			end := strings.Index(s[i+2:], "*/")
			if end < 0 {
				i = len(s)
			} else {
				i += 2 + end + 2
			}
			b.WriteByte(' ')
		case s[i] == '\'':
			// String literal with '' escapes; replaced by a placeholder.
			i++
			for i < len(s) {
				if s[i] == '\'' {
					if i+1 < len(s) && s[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			b.WriteString("''")
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= 'a' && c <= 'z') {
			return s[:i]
		}
	}
	return s
}
