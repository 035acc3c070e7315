package ingest

import (
	"regexp"
	"strings"
)

// fallbackExtension is used when no usable extension can be derived.
const fallbackExtension = "bin"

var (
	filenamePattern = regexp.MustCompile(`(?i)filename\s*=\s*"([^"]+)"`)

	// knownAudioExtensions are recognised anywhere in a filename whose final
	// extension is unusable, in this order.
	knownAudioExtensions = []string{"mp3", "wav", "m4a", "ogg"}
)

// FindFileName extracts a quoted filename="..." parameter from raw header
// bytes. It returns "" when there is none.
func FindFileName(window []byte) string {
	m := filenamePattern.FindSubmatch(window)
	if m == nil {
		return ""
	}
	return string(m[1])
}

// SafeExtension derives a lower-case extension that is safe to use in a
// local file name. The text after the last dot is used when it is 1 to 10
// letters or digits; otherwise a known audio extension appearing in the name
// is used, and failing that "bin".
func SafeExtension(name string) string {
	if name == "" {
		return fallbackExtension
	}

	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		candidate := strings.ToLower(name[idx+1:])
		if candidate != "" && len(candidate) <= 10 && isAlnum(candidate) {
			return candidate
		}
	}

	lower := strings.ToLower(name)
	for _, ext := range knownAudioExtensions {
		if strings.Contains(lower, "."+ext) {
			return ext
		}
	}

	return fallbackExtension
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
