package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedPeriods reports a period reply that is not a JSON object with
// a usable timePeriods list.
var ErrMalformedPeriods = errors.New("malformed reporting periods")

type periodsReply struct {
	TimePeriods []string `json:"timePeriods"`
}

// ParsePeriods decodes {"timePeriods": ["Q1 2023", ...]} into year*10+quarter
// integers, e.g. "Q1 2023" becomes 20231. Entries that are not of the form
// "Q<N> <YYYY>" are dropped; a reply where none survive is malformed.
func ParsePeriods(raw string) ([]int, error) {
	var reply periodsReply
	if err := json.Unmarshal([]byte(stripFence(raw)), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPeriods, err)
	}
	if reply.TimePeriods == nil {
		return nil, fmt.Errorf("%w: missing timePeriods", ErrMalformedPeriods)
	}

	out := make([]int, 0, len(reply.TimePeriods))
	for _, p := range reply.TimePeriods {
		if v, ok := NormalizePeriod(p); ok {
			out = append(out, v)
		}
	}
	if len(out) == 0 && len(reply.TimePeriods) > 0 {
		return nil, fmt.Errorf("%w: no period of the form Q<N> <YYYY> in %v", ErrMalformedPeriods, reply.TimePeriods)
	}
	return out, nil
}

// NormalizePeriod turns "Q<N> <YYYY>" into YYYY*10+N.
func NormalizePeriod(p string) (int, bool) {
	fields := strings.Fields(p)
	if len(fields) != 2 {
		return 0, false
	}
	q, y := strings.ToUpper(fields[0]), fields[1]
	if len(q) != 2 || q[0] != 'Q' || q[1] < '1' || q[1] > '4' {
		return 0, false
	}
	year, err := strconv.Atoi(y)
	if err != nil || len(y) != 4 {
		return 0, false
	}
	return year*10 + int(q[1]-'0'), true
}

// LatestReportedPeriod returns the last full calendar quarter before now,
// e.g. "Q2 2026" for a date in the third quarter of 2026.
func LatestReportedPeriod(now time.Time) string {
	q := (int(now.Month())-1)/3 + 1
	year := now.Year()
	q--
	if q == 0 {
		q = 4
		year--
	}
	return fmt.Sprintf("Q%d %d", q, year)
}

// stripFence removes a surrounding ```json fence a model may add.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
