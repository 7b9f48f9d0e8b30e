package fat

import (
	"fmt"
	"strings"
)

// generateShortName derives the 8.3 alias for longName that does not
// collide with any name in used. Names that already are valid 8.3
// names keep their spelling (upper-cased); others get a "~N" tail.
func generateShortName(longName string, used []string) (string, error) {
	longName = strings.TrimLeft(longName, ".")
	longName = strings.ToUpper(longName)

	rawName, rawExt := longName, ""
	if dotIdx := strings.LastIndex(longName, "."); dotIdx != -1 {
		rawName, rawExt = longName[:dotIdx], longName[dotIdx+1:]
	}

	name := cleanShortString(rawName)
	ext := cleanShortString(rawExt)
	if len(ext) > 3 {
		ext = ext[:3]
	}
	if name == "" {
		name = "_"
	}

	format := func(n string) string {
		if ext == "" {
			return n
		}
		return n + "." + ext
	}

	simpleName := format(name)
	doSuffix := name != rawName || len(name) > 8 || ext != rawExt || isUsed(simpleName, used)
	if !doSuffix {
		return simpleName, nil
	}

	for i := 1; i < 999999; i++ {
		serial := fmt.Sprintf("~%d", i)
		nameOffset := 8 - len(serial)
		if len(name) < nameOffset {
			nameOffset = len(name)
		}
		candidate := format(name[:nameOffset] + serial)
		if !isUsed(candidate, used) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("could not generate short name for %s", longName)
}

func isUsed(name string, used []string) bool {
	for _, u := range used {
		if strings.EqualFold(u, name) {
			return true
		}
	}
	return false
}

func cleanShortString(v string) string {
	var result strings.Builder
	for _, char := range v {
		// We skip these chars
		if char == '.' || char == ' ' {
			continue
		}
		if !validShortChar(char) {
			char = '_'
		}
		result.WriteRune(char)
	}
	return result.String()
}

func validShortChar(char rune) bool {
	if char >= 'A' && char <= 'Z' {
		return true
	}
	if char >= '0' && char <= '9' {
		return true
	}
	return strings.ContainsRune("_^$~!#%&-{}()@'`", char)
}
