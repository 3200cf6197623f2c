package database

import "strings"

// escaper mirrors mysql_real_escape_string for the default sql_mode, which
// is also what searchd expects inside single-quoted literals.
var escaper = strings.NewReplacer(
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	"\x1a", `\Z`,
)

// EscapeString quotes special characters in s for use inside a
// single-quoted SphinxQL string literal. Conn implementations that have no
// server-specific routine use it.
func EscapeString(s string) string {
	return escaper.Replace(s)
}
