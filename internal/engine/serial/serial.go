package serial

import (
	"fmt"
	"strings"
	"unicode"
)

// Fragment derives the deterministic member portion of a serial ID from the
// member's name initials and passout year. "Jane Doe" / 2014 -> "JD14".
func Fragment(fullName string, passoutYear int) string {
	var initials strings.Builder
	for _, word := range strings.Fields(fullName) {
		for _, r := range word {
			if unicode.IsLetter(r) {
				initials.WriteRune(unicode.ToUpper(r))
				break
			}
		}
		if initials.Len() >= 3 {
			break
		}
	}
	if initials.Len() == 0 {
		initials.WriteString("X")
	}
	return fmt.Sprintf("%s%02d", initials.String(), passoutYear%100)
}

// Format composes the final serial ID string. Counter values are zero-padded
// so serials sort lexicographically in allocation order.
func Format(orgCode, fragment string, counter int64) string {
	return fmt.Sprintf("%s-%s-%05d", orgCode, fragment, counter)
}
