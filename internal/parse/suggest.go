package parse

import "strings"

// hints maps stable error substrings to remediation hints surfaced to
// the end user. The mapping is total: unrecognized errors yield nothing.
var hints = []struct {
	substr string
	hint   string
}{
	{"could not parse days", "include days, e.g. \"weekdays\", \"weekends\", \"everyday\", or names like \"Monday and Wednesday\""},
	{"could not parse time", "include a time, e.g. \"9 PM\", \"21:00\", or \"noon\""},
	{"both arm and disarm", "use one action per command; split it into separate schedules"},
	{"hour:", "use an hour between 0 and 23 (or 1-12 with AM/PM)"},
	{"minute:", "use minutes between 00 and 59"},
}

// Suggest returns actionable hints for a parse error. It never panics
// and returns nil for nil or unrecognized errors.
func Suggest(err error) []string {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	var out []string
	for _, h := range hints {
		if strings.Contains(msg, h.substr) {
			out = append(out, h.hint)
		}
	}
	return out
}
