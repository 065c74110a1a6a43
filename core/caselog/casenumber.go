package caselog

import "fmt"

// caseNoAttempts bounds the allocate-insert retry loop when concurrent
// creations in the same course/year collide on the unique caseNo constraint.
const caseNoAttempts = 3

// FormatCaseNumber renders the yearly-scoped human-readable identifier:
// CASE-<year>-<seq>, with the 1-based sequence zero-padded to three digits
// (growing unpadded past 999).
func FormatCaseNumber(year, seq int) string {
	return fmt.Sprintf("CASE-%d-%03d", year, seq)
}
