package ics

import "strings"

// Escaping selects how text property values are escaped.
type Escaping int

const (
	// EscapeMinimal only turns line breaks into the two-character \n
	// sequence. Commas, semicolons and backslashes pass through as-is.
	EscapeMinimal Escaping = iota
	// EscapeRFC5545 applies the full TEXT escaping of RFC 5545 3.3.11.
	EscapeRFC5545
)

// ParseEscaping maps a config value onto an Escaping mode.
func ParseEscaping(s string) Escaping {
	if strings.EqualFold(s, "rfc5545") {
		return EscapeRFC5545
	}
	return EscapeMinimal
}

var (
	newlineReplacer = strings.NewReplacer("\r\n", `\n`, "\r", `\n`, "\n", `\n`)
	textReplacer    = strings.NewReplacer(
		`\`, `\\`,
		";", `\;`,
		",", `\,`,
		"\r\n", `\n`,
		"\r", `\n`,
		"\n", `\n`,
	)
)

// escapeText escapes a TEXT value. The result never contains a raw line break.
func (e Escaping) escapeText(s string) string {
	if e == EscapeRFC5545 {
		return textReplacer.Replace(s)
	}
	return newlineReplacer.Replace(s)
}

// escapeURI only strips line breaks; URI values are not TEXT-escaped.
func escapeURI(s string) string {
	return newlineReplacer.Replace(s)
}
