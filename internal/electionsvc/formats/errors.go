package formats

import (
	"fmt"
	"strconv"
)

// FileImportError is a data error found while importing a file. Importers
// collect them instead of stopping at the first one.
type FileImportError struct {
	Filename string `json:"filename,omitempty"`
	Line     int    `json:"line,omitempty"`
	Error    string `json:"error"`
}

func (e FileImportError) String() string {
	switch {
	case e.Filename != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.Filename, e.Line, e.Error)
	case e.Filename != "":
		return e.Filename + ": " + e.Error
	case e.Line > 0:
		return strconv.Itoa(e.Line) + ": " + e.Error
	}
	return e.Error
}

const (
	msgEmptyFile    = "The csv/xls/xlsx file is empty."
	msgInvalidFile  = "Not a valid csv/xls/xlsx file."
	msgInvalidExcel = "Not a valid xls/xlsx file."
	msgEmptyLine    = "The file contains an empty line."
	msgDuplicates   = "Some column names appear twice."
	msgAmbiguous    = "Could not find the expected columns, make sure all required columns exist and that there are no extra columns."
	msgNoData       = "No data found"
	msgInvalidValue = "Invalid values"
	msgInvalidState = "Invalid status"
)

func msgUnknown(entityID int) string {
	return fmt.Sprintf("%d is unknown", entityID)
}

func msgFoundTwice(name any) string {
	return fmt.Sprintf("%v was found twice", name)
}

// lineErrors wraps the messages of one row into import errors.
func lineErrors(messages []string, line int, filename string) []FileImportError {
	out := make([]FileImportError, 0, len(messages))
	for _, m := range messages {
		out = append(out, FileImportError{Error: m, Line: line, Filename: filename})
	}
	return out
}
