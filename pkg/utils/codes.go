package utils

import (
	"encoding/csv"
	"errors"
	"io"
	"regexp"
	"strings"
)

var splitPattern = regexp.MustCompile(`[\s,;|]+`)

// CodeCollection is the deduplicated set of codes of one submission.
type CodeCollection struct {
	Codes       []string
	RawCount    int
	UniqueCount int
}

// DuplicatesRemoved is the number of repeated codes that were dropped.
func (c CodeCollection) DuplicatesRemoved() int {
	return max(0, c.RawCount-c.UniqueCount)
}

func normalizeCode(token string) string {
	return strings.Trim(strings.Trim(strings.TrimSpace(token), `"`), `'`)
}

// ParseCodesFromText splits pasted text on whitespace, commas, semicolons
// and pipes.
func ParseCodesFromText(text string) []string {
	var out []string
	for _, token := range splitPattern.Split(text, -1) {
		if code := normalizeCode(token); code != "" {
			out = append(out, code)
		}
	}
	return out
}

// ParseCodesFromCSV takes every non-empty cell of a CSV document as a code.
// Reading stops at the first malformed record.
func ParseCodesFromCSV(text string) []string {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var out []string
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) || (err != nil && record == nil) {
			return out
		}
		for _, cell := range record {
			if code := normalizeCode(cell); code != "" {
				out = append(out, code)
			}
		}
	}
}

// CollectCodes merges the given token lists, keeping the first occurrence
// of each code.
func CollectCodes(sources ...[]string) CodeCollection {
	var merged []string
	for _, s := range sources {
		merged = append(merged, s...)
	}

	seen := make(map[string]struct{}, len(merged))
	codes := make([]string, 0, len(merged))
	for _, code := range merged {
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return CodeCollection{Codes: codes, RawCount: len(merged), UniqueCount: len(codes)}
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
