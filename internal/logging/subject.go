package logging

import "strings"

// FormatSubject builds the "component [source]" prefix used in console output.
func FormatSubject(component, source string) string {
	component = strings.TrimSpace(component)
	source = strings.TrimSpace(source)
	switch {
	case component != "" && source != "":
		return component + " [" + source + "]"
	case component != "":
		return component
	case source != "":
		return "[" + source + "]"
	default:
		return ""
	}
}
