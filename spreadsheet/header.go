// Package spreadsheet implements the streaming CSV metadata reader: header
// map resolution (with language-tag and datatype decoration), the FILES/
// ITEM_FILES column grammars, the INDEX embedded-object lookup, and
// percentage-stride row selection for resuming partially-completed jobs.
package spreadsheet

import (
	"fmt"
	"regexp"
	"strings"
)

// HeaderMap is a nested mapping from dotted attribute paths to header
// labels; a HeaderMap value denotes an embedded object and its own label
// mapping, mirroring a content model's HEADER_MAP.
type HeaderMap map[string]interface{} // value is string (leaf) or HeaderMap (embedded object)

// SystemHeaders are the columns every spreadsheet may carry that are not
// themselves content-model properties.
var SystemHeaders = map[string]bool{
	"URI": true, "PUBLIC URI": true, "CREATED": true, "MODIFIED": true,
	"INDEX": true, "FILES": true, "ITEM_FILES": true, "PUBLISH": true, "HIDDEN": true,
}

// languageNames maps the small fixed table of named languages the original
// spreadsheet format recognizes to their ISO codes; anything else in a
// "Label [xx]" decoration is assumed to already be a language code.
var languageNames = map[string]string{
	"Japanese":             "ja",
	"Japanese (Romanized)": "ja-latn",
}

// datatypeNames maps the well-known datatype labels a "Label {D}"
// decoration may use to their datatype URIs.
var datatypeNames = map[string]string{
	"EDTF": "http://id.loc.gov/datatypes/edtf",
	"Date": "http://www.w3.org/2001/XMLSchema#date",
}

// FlattenHeaders walks a nested HeaderMap and returns a flat map from
// header label to dotted attribute path, the form build_fields needs to
// resolve a CSV header back to the attribute it denotes.
func FlattenHeaders(hm HeaderMap, prefix string) map[string]string {
	out := make(map[string]string)
	for attr, v := range hm {
		switch value := v.(type) {
		case string:
			out[value] = prefix + attr
		case HeaderMap:
			for label, path := range FlattenHeaders(value, prefix+attr+".") {
				out[label] = path
			}
		}
	}
	return out
}

// ColumnHeader is a parsed CSV header: its base label plus an optional
// language tag decoration.
type ColumnHeader struct {
	Label    string
	Language string // "" if undecorated
}

var languageHeaderPattern = regexp.MustCompile(`^([^\[]*)(?: \[(.+)\])?$`)

// ParseColumnHeader splits "Label [xx]" into its label and language tag.
func ParseColumnHeader(header string) ColumnHeader {
	m := languageHeaderPattern.FindStringSubmatch(header)
	if m == nil {
		return ColumnHeader{Label: header}
	}
	return ColumnHeader{Label: strings.TrimSpace(m[1]), Language: m[2]}
}

func (h ColumnHeader) String() string {
	if h.Language == "" {
		return h.Label
	}
	return fmt.Sprintf("%s [%s]", h.Label, h.Language)
}

// Field is one resolved CSV column: the attribute path it maps to, plus
// any language tag or datatype decoration.
type Field struct {
	Attr     string
	Header   string
	Lang     string // "" if none
	Datatype string // "" if none; either resolved from a name table or passed through verbatim
}

var langHeaderPattern = regexp.MustCompile(`^([^\[]+)\s+\[(.+)\]$`)
var datatypeHeaderPattern = regexp.MustCompile(`^([^{]+)\s+\{(.+)\}$`)

// BuildFields resolves every fieldname in a spreadsheet against a header
// map, returning one Field per decorated or undecorated header. Headers
// that are system headers are skipped; any other unresolvable header is an
// error, since an unrecognized column is always a hard failure for the
// whole file (not just one row).
func BuildFields(fieldnames []string, headerMap HeaderMap) ([]Field, error) {
	propertyAttrs := FlattenHeaders(headerMap, "")
	var fields []Field
	for _, header := range fieldnames {
		if SystemHeaders[header] {
			continue
		}
		switch {
		case strings.Contains(header, "["):
			m := langHeaderPattern.FindStringSubmatch(header)
			if m == nil {
				return nil, fmt.Errorf("malformed language-tagged header %q", header)
			}
			label, langLabel := m[1], m[2]
			attr, ok := propertyAttrs[label]
			if !ok {
				return nil, fmt.Errorf("unknown header %q in import file", header)
			}
			lang := langLabel
			if code, ok := languageNames[langLabel]; ok {
				lang = code
			}
			fields = append(fields, Field{Attr: attr, Header: header, Lang: lang})
		case strings.Contains(header, "{"):
			m := datatypeHeaderPattern.FindStringSubmatch(header)
			if m == nil {
				return nil, fmt.Errorf("malformed datatype header %q", header)
			}
			label, datatypeLabel := m[1], m[2]
			attr, ok := propertyAttrs[label]
			if !ok {
				return nil, fmt.Errorf("unknown header %q in import file", header)
			}
			datatypeURI, ok := datatypeNames[datatypeLabel]
			if !ok {
				datatypeURI = datatypeLabel // assume it's already an N3-abbreviated or full URI
			}
			fields = append(fields, Field{Attr: attr, Header: header, Datatype: datatypeURI})
		default:
			attr, ok := propertyAttrs[header]
			if !ok {
				return nil, fmt.Errorf("unrecognized header %q in import file", header)
			}
			fields = append(fields, Field{Attr: attr, Header: header})
		}
	}
	return fields, nil
}
