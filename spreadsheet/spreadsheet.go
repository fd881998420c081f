package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/umd-lib/plastron-go/internal/perr"
)

// Row is one parsed data row from a metadata spreadsheet.
type Row struct {
	Number           int
	Data             map[string]string
	IdentifierColumn string

	fileGroups map[string]*FileGroup
}

// Get returns the value of a column, or "" if absent.
func (r *Row) Get(key string) string { return r.Data[key] }

// Identifier returns this row's value in the identifier column.
func (r *Row) Identifier() string { return r.Data[r.IdentifierColumn] }

// URI returns the row's URI column, or "" if it has none (meaning a new
// resource should be created).
func (r *Row) URI() string { return r.Data["URI"] }

// HasURI reports whether this row names an existing resource.
func (r *Row) HasURI() bool { return r.Data["URI"] != "" }

// HasFiles reports whether this row has a non-empty FILES column.
func (r *Row) HasFiles() bool { return r.Data["FILES"] != "" }

// HasItemFiles reports whether this row has a non-empty ITEM_FILES column.
func (r *Row) HasItemFiles() bool { return r.Data["ITEM_FILES"] != "" }

// FileGroups returns the FILES column parsed into basename-grouped FileGroups.
func (r *Row) FileGroups() map[string]*FileGroup { return r.fileGroups }

// ItemFiles returns the ITEM_FILES column parsed into a flat FileSpec list.
func (r *Row) ItemFiles() []FileSpec { return ParseItemFiles(r.Data["ITEM_FILES"]) }

// Index returns the row's INDEX column parsed into a lookup table.
func (r *Row) Index() (map[string]map[int]string, error) { return ParseIndex(r.Data["INDEX"]) }

// Publish reports whether the row's PUBLISH column is a truthy value.
func (r *Row) Publish() bool { return isTruthy(r.Data["PUBLISH"]) }

// Hidden reports whether the row's HIDDEN column is a truthy value.
func (r *Row) Hidden() bool { return isTruthy(r.Data["HIDDEN"]) }

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "True", "TRUE", "yes", "Yes", "YES":
		return true
	default:
		return false
	}
}

// InvalidRow is yielded instead of a Row when a line could not be parsed,
// so the caller can log it and move on rather than aborting the whole run.
type InvalidRow struct {
	LineNumber int
	Reason     string
}

// RowOrInvalid is exactly one of Row or InvalidRow, set on the
// corresponding field.
type RowOrInvalid struct {
	Row     *Row
	Invalid *InvalidRow
}

// CompletedSet is anything the rows() iterator can check a row's
// identifier against to decide if it's already done; itemlog.Log
// implements this, and so does a small map-backed fake in the tests.
type CompletedSet interface {
	Len() int
	Contains(key string) bool
}

// Spreadsheet is a streaming reader over a metadata CSV file, resolving its
// header row against a content model's header map.
type Spreadsheet struct {
	Filename         string
	HeaderMap        HeaderMap
	IdentifierHeader string

	file       *os.File
	reader     *csv.Reader
	fieldnames []string
	fields     []Field
	total      int
	seekable   bool
}

// Open opens filename and resolves its header row against headerMap.
// identifierHeader is the header map's own identifier-or-title column,
// used to key completed-row tracking during a percentage load.
func Open(filename string, headerMap HeaderMap, identifierHeader string) (*Spreadsheet, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, &perr.MetadataError{Reason: fmt.Sprintf("cannot read metadata file %q: %v", filename, err)}
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // rows with a differing column count are reported as InvalidRow, not a hard error
	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, &perr.MetadataError{Reason: fmt.Sprintf("cannot read header row of %q: %v", filename, err)}
	}
	fields, err := BuildFields(header, headerMap)
	if err != nil {
		f.Close()
		return nil, err
	}

	s := &Spreadsheet{
		Filename:         filename,
		HeaderMap:        headerMap,
		IdentifierHeader: identifierHeader,
		file:             f,
		reader:           r,
		fieldnames:       header,
		fields:           fields,
	}

	if info, statErr := f.Stat(); statErr == nil && info.Mode().IsRegular() {
		s.seekable = true
		total, countErr := s.countDataRows()
		if countErr == nil {
			s.total = total
		}
		if rewindErr := s.rewind(); rewindErr != nil {
			f.Close()
			return nil, rewindErr
		}
	}
	return s, nil
}

func (s *Spreadsheet) countDataRows() (int, error) {
	count := 0
	for {
		_, err := s.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *Spreadsheet) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.reader = csv.NewReader(s.file)
	s.reader.FieldsPerRecord = -1
	if _, err := s.reader.Read(); err != nil { // discard header
		return err
	}
	return nil
}

// Close releases the underlying file handle.
func (s *Spreadsheet) Close() error { return s.file.Close() }

// Fieldnames returns the header row as read from the file.
func (s *Spreadsheet) Fieldnames() []string { return s.fieldnames }

// Fields returns the header row resolved against the header map, the same
// list Open used to validate the header row, for callers (the import and
// update engines) that need to turn a Row's data into a graph.
func (s *Spreadsheet) Fields() []Field { return s.fields }

// HasBinaries reports whether the spreadsheet declares a FILES or
// ITEM_FILES column.
func (s *Spreadsheet) HasBinaries() bool {
	for _, h := range s.fieldnames {
		if h == "FILES" || h == "ITEM_FILES" {
			return true
		}
	}
	return false
}

// Total is the row count of the file, if it could be determined in
// advance (the file is seekable); 0 otherwise.
func (s *Spreadsheet) Total() int { return s.total }

// RowsOptions configures Rows.
type RowsOptions struct {
	Limit      int // 0 means no limit
	Percentage int // 0 means no percentage subsetting; otherwise 1-100
	Completed  CompletedSet
}

// Rows streams the data rows of the spreadsheet, applying the row limit,
// percentage-stride subsetting, and already-completed skipping described
// in spec §4.7. It sends exactly one RowOrInvalid per admitted line on the
// returned channel, closing the channel when the file is exhausted or an
// unrecoverable read error occurs (in which case err receives that error
// after the channel closes).
func (s *Spreadsheet) Rows(opts RowsOptions) (<-chan RowOrInvalid, *error) {
	out := make(chan RowOrInvalid)
	var finalErr error

	go func() {
		defer close(out)

		var subsetToLoad map[string]bool
		if opts.Percentage > 0 {
			if !s.seekable {
				finalErr = fmt.Errorf("cannot execute a percentage load using a non-seekable file")
				return
			}
			subset, err := s.selectPercentageSubset(opts.Percentage, opts.Completed)
			if err != nil {
				finalErr = err
				return
			}
			subsetToLoad = subset
			if err := s.rewind(); err != nil {
				finalErr = err
				return
			}
		}

		rowCount := 0
		lineNumber := 1 // header was line 1
		for {
			record, err := s.reader.Read()
			if err == io.EOF {
				break
			}
			lineNumber++
			if err != nil {
				finalErr = err
				return
			}
			rowNumber := rowCount + 1
			if opts.Limit > 0 && rowNumber > opts.Limit {
				break
			}

			if len(record) != len(s.fieldnames) {
				rowCount++
				out <- RowOrInvalid{Invalid: &InvalidRow{LineNumber: lineNumber, Reason: "Wrong number of columns"}}
				continue
			}

			data := make(map[string]string, len(s.fieldnames))
			for i, name := range s.fieldnames {
				data[name] = record[i]
			}

			identifier := data[s.IdentifierHeader]
			if subsetToLoad != nil && !subsetToLoad[identifier] {
				continue
			}
			rowCount++

			if opts.Completed != nil && opts.Completed.Contains(identifier) {
				continue
			}

			fileGroups, groupErr := BuildFileGroups(data["FILES"])
			if groupErr != nil {
				out <- RowOrInvalid{Invalid: &InvalidRow{LineNumber: lineNumber, Reason: groupErr.Error()}}
				continue
			}

			out <- RowOrInvalid{Row: &Row{
				Number:           rowNumber,
				Data:             data,
				IdentifierColumn: s.IdentifierHeader,
				fileGroups:       fileGroups,
			}}
		}
	}()

	return out, &finalErr
}

// selectPercentageSubset mirrors the original's step-size stride: it picks
// every step_size-th remaining identifier so the final loaded count is as
// close as possible to percentage% of the total row count, accounting for
// rows already recorded in completed.
func (s *Spreadsheet) selectPercentageSubset(percentage int, completed CompletedSet) (map[string]bool, error) {
	var remaining []string
	for {
		record, err := s.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		var identifier string
		for i, name := range s.fieldnames {
			if name == s.IdentifierHeader && i < len(record) {
				identifier = record[i]
			}
		}
		if completed == nil || !completed.Contains(identifier) {
			remaining = append(remaining, identifier)
		}
	}

	subset := make(map[string]bool)
	if len(remaining) == 0 {
		return subset, nil
	}

	completedLen := 0
	if completed != nil {
		completedLen = completed.Len()
	}
	targetCount := int((float64(percentage) / 100) * float64(s.total))
	stepSize := 1
	if len(remaining) > targetCount && s.total > 0 && percentage > 0 {
		stepSize = int((100 * (1 - (float64(completedLen) / float64(s.total)))) / float64(percentage))
		if stepSize < 1 {
			stepSize = 1
		}
	}
	for i := 0; i < len(remaining); i += stepSize {
		subset[remaining[i]] = true
	}
	return subset, nil
}
