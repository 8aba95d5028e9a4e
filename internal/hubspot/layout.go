package hubspot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/textutil"
)

// LayoutParser recovers event details from a landing page's layoutSections
// payload.
type LayoutParser interface {
	Schedule(layout []byte) (*domain.Schedule, bool)
	Description(layout []byte) (string, bool)
}

var (
	// 12/05/2024 godz. 14:00, 12.5.2024, 12-05-2024 10:30
	dmyPattern = regexp.MustCompile(`(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})\s*(?:godz\.\s*)?(\d{1,2}:\d{2})?`)
	// 2024-05-12T14:00, 2024-05-12 14:00
	isoPattern = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})(?:T|\s)(\d{2}:\d{2})?`)

	subheaderPattern = regexp.MustCompile(`"subheader"\s*:\s*"([^"]+)"`)
	htmlPattern      = regexp.MustCompile(`"html"\s*:\s*"([^"]{50,500})"`)
)

// RegexLayoutParser scans the serialized layout for date, location and
// description fragments.
type RegexLayoutParser struct{}

// Schedule implements LayoutParser.
func (RegexLayoutParser) Schedule(layout []byte) (*domain.Schedule, bool) {
	if len(layout) == 0 {
		return nil, false
	}

	var year, month, day int
	var clock string
	found := false
	for _, re := range []*regexp.Regexp{dmyPattern, isoPattern} {
		m := re.FindSubmatch(layout)
		if m == nil {
			continue
		}
		a, _ := strconv.Atoi(string(m[1]))
		b, _ := strconv.Atoi(string(m[2]))
		c, _ := strconv.Atoi(string(m[3]))
		if len(m[1]) == 4 {
			year, month, day = a, b, c
		} else {
			day, month, year = a, b, c
		}
		clock = string(m[4])
		found = true
		break
	}
	if !found {
		return nil, false
	}

	if clock == "" {
		clock = "00:00"
	} else if len(clock) == 4 {
		clock = "0" + clock
	}

	date := fmt.Sprintf("%04d-%02d-%02d", year, month, day)
	s := &domain.Schedule{
		DateTime: date + " " + clock,
		Date:     date,
		Time:     clock,
	}
	if m := subheaderPattern.FindSubmatch(layout); m != nil {
		s.Location = unescape(string(m[1]))
	}
	return s, true
}

// Description implements LayoutParser.
func (RegexLayoutParser) Description(layout []byte) (string, bool) {
	m := htmlPattern.FindSubmatch(layout)
	if m == nil {
		return "", false
	}
	text := strings.TrimSpace(textutil.StripTags(unescape(string(m[1]))))
	if text == "" {
		return "", false
	}
	return text, true
}

// unescape decodes JSON string escapes, returning s unchanged when it is not
// a valid JSON string body.
func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
