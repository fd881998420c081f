package spreadsheet

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/umd-lib/plastron-go/internal/perr"
)

// FileSpec is a single referenced binary, with its location string and an
// optional usage tag (e.g. <source>, <derivative>).
type FileSpec struct {
	Name  string
	Usage string
}

// FileGroup is every FileSpec sharing a basename-sans-extension ("root
// name"), given a single shared label (e.g. "Page 1").
type FileGroup struct {
	RootName string
	Label    string
	Files    []FileSpec
	Ordinal  int // position of first occurrence in the FILES column, for OrderedGroups
}

// Filenames returns just the Name of every file in the group.
func (g FileGroup) Filenames() []string {
	out := make([]string, len(g.Files))
	for i, f := range g.Files {
		out[i] = f.Name
	}
	return out
}

// usageTagPattern matches a trailing "<usage>" tag on a filename token.
var usageTagPattern = "<"

// parseUsageTag splits a trailing "<usage>" tag off of name, if present.
func parseUsageTag(name string) (string, string) {
	if i := strings.LastIndex(name, usageTagPattern); i >= 0 && strings.HasSuffix(name, ">") {
		return strings.TrimSpace(name[:i]), name[i+1 : len(name)-1]
	}
	return name, ""
}

// parseLabel splits a leading "LABEL:" prefix off of a filename token. The
// split is on the first colon, so any colon in the filename itself (a
// Windows-style drive letter, a URL scheme) also makes the text before it
// a label.
func parseLabel(token string) (name string, label string, hasLabel bool) {
	if i := strings.Index(token, ":"); i >= 0 {
		return token[i+1:], token[:i], true
	}
	return token, "", false
}

// BuildFileGroups parses a FILES column value: semicolon-separated tokens,
// each optionally "LABEL:" prefixed and/or "<usage>" tagged, grouped by
// basename-sans-extension. See spec §4.7 for the full grammar and the rules
// around mixed labelled/unlabelled groups.
func BuildFileGroups(filenamesString string) (map[string]*FileGroup, error) {
	groups := make(map[string]*FileGroup)
	var order []string
	if strings.TrimSpace(filenamesString) == "" {
		return groups, nil
	}
	for _, token := range strings.Split(filenamesString, ";") {
		filename, label, hasLabel := parseLabel(token)
		filename, usage := parseUsageTag(filename)
		root := rootName(filename)

		group, exists := groups[root]
		if !exists {
			group = &FileGroup{RootName: root, Ordinal: len(order)}
			groups[root] = group
			order = append(order, root)
		}
		if hasLabel {
			if group.Label != "" && group.Label != label {
				return nil, &perr.MetadataError{Reason: fmt.Sprintf("multiple files with rootname %q have differing labels", root)}
			}
			group.Label = label
		}
		group.Files = append(group.Files, FileSpec{Name: filename, Usage: usage})
	}

	anyLabelled := false
	anyUnlabelled := false
	for _, root := range order {
		if groups[root].Label != "" {
			anyLabelled = true
		} else {
			anyUnlabelled = true
		}
	}
	if anyLabelled && anyUnlabelled {
		return nil, &perr.MetadataError{Reason: "if any file group has a label, all file groups must have a label"}
	}
	if !anyLabelled {
		for i, root := range order {
			groups[root].Label = "Page " + strconv.Itoa(i+1)
		}
	}
	return groups, nil
}

// OrderedGroups returns groups sorted by Ordinal, recovering the order in
// which each rootname first appeared in the FILES column -- the page
// sequence's creation order.
func OrderedGroups(groups map[string]*FileGroup) []*FileGroup {
	out := make([]*FileGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out
}

func rootName(filename string) string {
	base := path.Base(filename)
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext)
}

// ParseItemFiles parses an ITEM_FILES column value: a simple
// semicolon-delimited list of FileSpecs, with no basename grouping.
func ParseItemFiles(itemFilesString string) []FileSpec {
	if strings.TrimSpace(itemFilesString) == "" {
		return nil
	}
	var specs []FileSpec
	for _, token := range strings.Split(itemFilesString, ";") {
		name, usage := parseUsageTag(token)
		specs = append(specs, FileSpec{Name: name, Usage: usage})
	}
	return specs
}

// IndexEntry is one parsed INDEX column assignment: the n-th value of
// attribute Attr is the embedded object whose hash fragment is Fragment.
type IndexEntry struct {
	Attr     string
	N        int
	Fragment string
}

// ParseIndex parses an INDEX column value: semicolon-separated entries of
// the form "attr[n]=#fragment", used to preserve stable identity for
// embedded sub-objects across re-runs of the same import.
func ParseIndex(indexString string) (map[string]map[int]string, error) {
	index := make(map[string]map[int]string)
	if strings.TrimSpace(indexString) == "" {
		return index, nil
	}
	for _, entry := range strings.Split(indexString, ";") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, &perr.MetadataError{Reason: fmt.Sprintf("malformed INDEX entry %q", entry)}
		}
		key, fragment := parts[0], strings.TrimPrefix(parts[1], "#")
		attr, n, err := parseIndexKey(key)
		if err != nil {
			return nil, err
		}
		if index[attr] == nil {
			index[attr] = make(map[int]string)
		}
		index[attr][n] = fragment
	}
	return index, nil
}

var indexKeyPattern = regexp.MustCompile(`^(\w+)\[(\d+)\]$`)

func parseIndexKey(key string) (string, int, error) {
	m := indexKeyPattern.FindStringSubmatch(key)
	if m == nil {
		return "", 0, &perr.MetadataError{Reason: fmt.Sprintf("malformed INDEX key %q", key)}
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, &perr.MetadataError{Reason: fmt.Sprintf("malformed INDEX index %q", key)}
	}
	return m[1], n, nil
}
