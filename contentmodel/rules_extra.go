package contentmodel

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/language"

	"github.com/umd-lib/plastron-go/graph"
)

// edtfPattern is a pragmatic EDTF (Extended Date/Time Format) level-0/level-1
// matcher: plain or uncertain/approximate ("?", "~", "%") years, year-months,
// and year-month-days, optionally as a "/"-separated interval, and the
// unspecified-digit ("19XX") and season (21-24) forms. It does not attempt
// every edge case of the full standard, since no EDTF validation library
// appears anywhere in the retrieval pack.
var edtfPattern = regexp.MustCompile(
	`^(\d{4}(X{1,2})?|\d{2}XX)(-(0[1-9]|1[0-2]|2[1-4])(-([0-2]\d|3[01]))?)?[?~%]?$`,
)

func isEDTFFormatted(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return true
	}
	for _, part := range strings.SplitN(value, "/", 2) {
		if !edtfPattern.MatchString(strings.TrimSpace(part)) {
			return false
		}
	}
	return true
}

// EDTFFormatted fails if any value is not a blank or EDTF-formatted date.
func EDTFFormatted() Rule {
	return func(values []graph.Term) (string, bool) {
		for _, v := range values {
			if !isEDTFFormatted(v.Value) {
				return fmt.Sprintf("value %q is not a valid EDTF date", v.Value), false
			}
		}
		return "", true
	}
}

// ValidLanguageCode fails if any value does not parse as a BCP 47 / ISO 639
// language tag.
func ValidLanguageCode() Rule {
	return func(values []graph.Term) (string, bool) {
		for _, v := range values {
			if _, err := language.Parse(v.Value); err != nil {
				return fmt.Sprintf("value %q is not a valid language code", v.Value), false
			}
		}
		return "", true
	}
}

// handlePattern matches a CNRI Handle System identifier: a numeric naming
// authority prefix, a slash, and a non-empty suffix (e.g. "1903.1/12345").
var handlePattern = regexp.MustCompile(`^\d+(\.\d+)*/\S+$`)

// ValidHandleFormat fails if any value is not shaped like a handle.
func ValidHandleFormat() Rule {
	return func(values []graph.Term) (string, bool) {
		for _, v := range values {
			if !handlePattern.MatchString(v.Value) {
				return fmt.Sprintf("value %q is not a valid handle", v.Value), false
			}
		}
		return "", true
	}
}

// containsMarkup reports whether value parses as HTML containing at least
// one element node, which is how finding-aid exports sometimes leak markup
// (e.g. "<p>...</p>" or stray "<i>" tags) into a field meant to hold plain
// text.
func containsMarkup(value string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(value))
	if err != nil {
		return false
	}
	return doc.Find("body *").Length() > 0
}

// PlainText fails if any value contains HTML markup, for descriptive fields
// that must hold plain text rather than a markup fragment.
func PlainText() Rule {
	return func(values []graph.Term) (string, bool) {
		for _, v := range values {
			if containsMarkup(v.Value) {
				return fmt.Sprintf("value %q contains HTML markup", v.Value), false
			}
		}
		return "", true
	}
}
