package registry

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxNameBytes = 200
	maxExtBytes  = 16
	fallbackName = "download"
)

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// SanitizeName turns an engine-produced file name into one that is safe to put
// in a Content-Disposition header and on any filesystem.
func SanitizeName(name string) string {
	name = whitespace.ReplaceAllString(name, "_")
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ".")

	if name == "" {
		return fallbackName
	}

	if len(name) <= maxNameBytes {
		return name
	}

	ext := filepath.Ext(name)
	if len(ext) > maxExtBytes {
		ext = ""
	}

	stem := truncate(strings.TrimSuffix(name, ext), maxNameBytes-len(ext))

	return stem + ext
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}

// uniqueName suffixes name with _1, _2... until taken reports false.
func uniqueName(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 1; ; i++ {
		candidate := stem + "_" + strconv.Itoa(i) + ext
		if !taken(candidate) {
			return candidate
		}
	}
}
