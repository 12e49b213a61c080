package keys

import "strings"

// minCandidateLen is the shortest line considered as key material.
const minCandidateLen = 40

// labelWords mark a line as a label or note rather than key material.
var labelWords = []string{"wallet", "address", "private", "key", "mnemonic", "seed", "phrase"}

// FilterResult is the outcome of scanning submitted text.
type FilterResult struct {
	Valid []Credential
	// Lines is the number of non-blank lines scanned.
	Lines int
	// Rejected counts lines that were not valid credentials.
	Rejected int
}

// Filter extracts credentials from free-form text, one per line.
// Blank lines are skipped. Comments, labels and anything that does not
// decode to a keypair are counted as rejected. Order of valid credentials
// follows the input.
func Filter(text string) FilterResult {
	var res FilterResult

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		res.Lines++

		c, ok := candidate(line)
		if !ok {
			res.Rejected++
			continue
		}
		cred, err := Parse(c)
		if err != nil {
			res.Rejected++
			continue
		}
		res.Valid = append(res.Valid, cred)
	}
	return res
}

func candidate(line string) (string, bool) {
	s := strings.TrimSpace(line)
	switch {
	case len(s) < minCandidateLen,
		strings.HasPrefix(s, "#"),
		strings.HasPrefix(s, "//"),
		strings.Contains(s, " "):
		return "", false
	}
	for _, w := range labelWords {
		if strings.Contains(s, w) {
			return "", false
		}
	}
	return s, true
}
