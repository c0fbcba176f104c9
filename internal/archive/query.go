package archive

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	queryTokens = regexp.MustCompile(`[^\s"']+|"([^"]*)"|'([^']*)'`)
	plainWord   = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
)

// roleFilters maps query prefixes to stored roles.
var roleFilters = []struct {
	prefix string
	role   string
}{
	{"user:", "user"},
	{"ai:", "assistant"},
	{"assistant:", "assistant"},
}

// ParseQuery converts user input into FTS5 syntax. Quoted phrases pass
// through, user:term and ai:term restrict the role, and longer plain words
// match as prefixes. Terms are joined with AND.
func ParseQuery(input string) string {
	var parts []string

	for _, token := range queryTokens.FindAllString(strings.TrimSpace(input), -1) {
		if strings.HasPrefix(token, "\"") || strings.HasPrefix(token, "'") {
			parts = append(parts, token)
			continue
		}

		if part, ok := roleTerm(token); ok {
			parts = append(parts, part)
			continue
		}

		if len(token) > 3 && plainWord.MatchString(token) {
			parts = append(parts, token+"*")
		} else {
			parts = append(parts, token)
		}
	}

	return strings.Join(parts, " AND ")
}

func roleTerm(token string) (string, bool) {
	lower := strings.ToLower(token)
	for _, f := range roleFilters {
		if !strings.HasPrefix(lower, f.prefix) {
			continue
		}
		term := token[len(f.prefix):]
		if term == "" {
			return "role:" + f.role, true
		}
		return fmt.Sprintf("(role:%s AND content:%s)", f.role, term), true
	}
	return "", false
}
