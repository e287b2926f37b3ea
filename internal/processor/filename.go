package processor

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const unnamed = "sin_nombre"

// SanitizeName turns a person's name into a filesystem-safe token: diacritics
// are stripped, every run of non-alphanumerics becomes one underscore and
// underscores at either end are trimmed.
func SanitizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}

	var b strings.Builder
	gap := false
	for _, r := range plain {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if gap && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			gap = false
			continue
		}
		gap = true
	}
	if b.Len() == 0 {
		return unnamed
	}
	return b.String()
}

// CertificateFilename is the download name of a recipient's certificate.
func CertificateFilename(name string) string {
	return "Constancia_" + SanitizeName(name) + ".pdf"
}
