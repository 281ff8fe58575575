package chat

import "github.com/dlclark/regexp2"

var (
	loneOpenBrace  = regexp2.MustCompile(`(?<!\{)\{(?!\{)`, regexp2.None)
	loneCloseBrace = regexp2.MustCompile(`(?<!\})\}(?!\})`, regexp2.None)
)

// Sanitize doubles every brace that is not already part of a doubled pair so
// the text survives f-string rendering unchanged. Applying it twice is a no-op.
func Sanitize(s string) string {
	out, err := loneOpenBrace.Replace(s, "{{", -1, -1)
	if err != nil {
		return s
	}
	out, err = loneCloseBrace.Replace(out, "}}", -1, -1)
	if err != nil {
		return s
	}
	return out
}
