package strutil

// CmpFold reports whether a and b are equal under ASCII case folding. Header
// names are ASCII-only, so the full unicode treatment of strings.EqualFold
// isn't needed here.
func CmpFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := 0; i < len(a); i++ {
		if a[i]|0x20 != b[i]|0x20 {
			return false
		}
	}

	return true
}

// LStripWS trims leading spaces and tabs.
func LStripWS(str string) string {
	for i := 0; i < len(str); i++ {
		if str[i] != ' ' && str[i] != '\t' {
			return str[i:]
		}
	}

	return ""
}

// RStripWS trims trailing spaces and tabs.
func RStripWS(str string) string {
	for i := len(str) - 1; i >= 0; i-- {
		if str[i] != ' ' && str[i] != '\t' {
			return str[:i+1]
		}
	}

	return ""
}
