package validate

import "strings"

var hints = []struct {
	substr string
	hint   string
}{
	{"at least", "pick a time further in the future; schedules need a minimum lead time"},
	{"within", "pick a date closer to today"},
	{"night-time", "choose a time outside the configured night window, or ask an admin to relax it"},
	{"business hours", "choose a time between 09:00 and 18:00"},
	{"weekend", "choose weekdays only"},
	{"limit reached", "cancel an existing schedule before creating a new one"},
	{"conflicts with existing", "shift this schedule a few minutes, or cancel the conflicting one"},
	{"mode must be", "use \"away\" or \"stay\" as the arm mode"},
	{"at least one weekday", "include at least one day, e.g. \"weekdays\" or \"Monday\""},
}

// Suggest maps a report's error messages to remediation hints.
// It is a pure, total mapping: unknown messages produce no hint and
// nothing here ever fails.
func Suggest(r Report) []string {
	var out []string
	seen := map[string]bool{}
	for _, issue := range r.Errors {
		msg := strings.ToLower(issue.Message)
		for _, h := range hints {
			if strings.Contains(msg, h.substr) && !seen[h.hint] {
				seen[h.hint] = true
				out = append(out, h.hint)
			}
		}
	}
	return out
}
