package dbx

import "regexp"

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// IsIdentifier reports whether s is safe to splice into SQL as an unquoted
// table name or table-name prefix.
func IsIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}
