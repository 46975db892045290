package timeparsing

import (
	"fmt"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var nlParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseNatural resolves English expressions like "tomorrow" or
// "last friday at 5pm" against now. The whole string must be the
// expression; partial matches ("meet me tomorrow") are rejected so
// typos do not silently resolve to a date.
func ParseNatural(s string, now time.Time) (time.Time, error) {
	r, err := nlParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %q: %w", s, err)
	}
	if r == nil || r.Index > 0 || len(r.Text) != len(s) {
		return time.Time{}, fmt.Errorf("not a time expression: %q", s)
	}
	return r.Time, nil
}
