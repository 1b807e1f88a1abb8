package utils

import "strings"

const dataURLImagePrefix = "data:image"

// SplitDataURL separates "data:image/...;base64,<payload>" into its media type and
// payload. Only the first comma splits. Values that do not start with the image
// data-URL marker, or have no comma, are returned unchanged as payload with ok=false.
func SplitDataURL(value string) (mediaType, payload string, ok bool) {
	if !strings.HasPrefix(value, dataURLImagePrefix) {
		return "", value, false
	}
	idx := strings.IndexByte(value, ',')
	if idx < 0 {
		return "", value, false
	}
	return strings.TrimPrefix(value[:idx], "data:"), value[idx+1:], true
}

// StripBase64Whitespace removes line breaks and spaces that some encoders insert
// into long base64 bodies.
func StripBase64Whitespace(s string) string {
	if !strings.ContainsAny(s, " \r\n\t") {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\r', '\n', '\t':
			return -1
		}
		return r
	}, s)
}
