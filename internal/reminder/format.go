package reminder

import (
	"fmt"
	"strings"
	"time"

	"healthfeed/pkg"
)

// ist is fixed at +05:30; India has no DST.
var ist = time.FixedZone("IST", 5*3600+30*60)

// SplitAndCleanNumbers splits a phone field that may hold several numbers
// separated by , ; | or newlines.  Spaces are removed, bare digit strings get
// the +91 country code, and duplicates are dropped keeping first-seen order.
func SplitAndCleanNumbers(field string) []string {
	if field == "" {
		return nil
	}
	parts := strings.FieldsFunc(field, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '\n'
	})
	var out []string
	seen := make(map[string]bool)
	for _, p := range parts {
		n := strings.ReplaceAll(strings.TrimSpace(p), " ", "")
		if n == "" {
			continue
		}
		if !strings.HasPrefix(n, "+") && allDigits(n) {
			n = "+91" + n
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// BestName picks the first non-blank of name, full_name and first_name.
func BestName(p *pkg.Profile) string {
	if n := displayName(p); n != "" {
		return n
	}
	return "there"
}

func displayName(p *pkg.Profile) string {
	if p == nil {
		return ""
	}
	for _, s := range []*string{p.Name, p.FullName, p.FirstName} {
		if s != nil && strings.TrimSpace(*s) != "" {
			return strings.TrimSpace(*s)
		}
	}
	return ""
}

// FormatIST renders t for an SMS, e.g. "14 Oct, 03:30 PM IST".
func FormatIST(t time.Time) string {
	return t.In(ist).Format("02 Jan, 03:04 PM") + " IST"
}

func vitalsMessage(name string) string {
	return fmt.Sprintf("Hi %s, don’t forget to add today’s vitals.", name)
}

func appointmentMessage(name, when, apptID string) string {
	return fmt.Sprintf("Hi %s, reminder: your appointment is at %s. (APPT:%s)", name, when, apptID)
}
