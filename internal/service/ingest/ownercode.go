package ingest

import (
	"regexp"
	"strings"
)

// ownerCodePattern matches account-style codes such as "ab12345" or
// "XY9" embedded anywhere in a folder name.
var ownerCodePattern = regexp.MustCompile(`(?i)[a-z]{2,}\d+`)

// ownerCodeFromFolder derives the submission owner's code from a folder
// name. Export folders typically look like "Surname Name (ab12345)";
// the leftmost code-looking token wins. When no token matches, the
// whole folder name is used as the code.
func ownerCodeFromFolder(name string) string {
	if match := ownerCodePattern.FindString(name); match != "" {
		return strings.ToLower(match)
	}
	return strings.ToLower(strings.TrimSpace(name))
}
