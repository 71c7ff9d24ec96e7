package browser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Category is the identifier prefix of an element kind.
type Category string

const (
	CategoryButton  Category = "btn"
	CategoryField   Category = "input"
	CategoryTable   Category = "table"
	CategoryHeading Category = "h3"
)

var tagPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*$`)

// headingCategory names heading identifiers after the heading selector when
// it is a plain tag name, so "h2" headings are addressed as h2_N.
func headingCategory(selector string) Category {
	selector = strings.TrimSpace(selector)
	if tagPattern.MatchString(selector) {
		return Category(strings.ToLower(selector))
	}
	return CategoryHeading
}

// FormatID returns the identifier of the element at a 1-based ordinal.
func FormatID(c Category, ordinal int) string {
	return fmt.Sprintf("%s_%d", c, ordinal)
}

// ParseID returns the 1-based ordinal encoded in id. Both the full form
// ("btn_2") and a bare ordinal ("2") are accepted; a prefix naming another
// category is rejected.
func ParseID(id string, c Category) (int, error) {
	raw := strings.TrimSpace(id)
	if i := strings.LastIndex(raw, "_"); i >= 0 {
		if Category(raw[:i]) != c {
			return 0, fmt.Errorf("%w: %q is not a %s identifier", ErrIndexOutOfRange, id, c)
		}
		raw = raw[i+1:]
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: invalid identifier %q", ErrIndexOutOfRange, id)
	}
	return n, nil
}
