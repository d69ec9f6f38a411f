package formats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// sniffSize is the number of characters used to guess the delimiter.
const sniffSize = 1024

var delimiters = []rune{',', '\t', ';'}

var (
	whitespace       = regexp.MustCompile(`\s+`)
	identifierChars  = strings.NewReplacer("-", "_", " ", "_", ".", "_", "%", "_", "/", "_", ",", "_", ";", "_", "(", "_", ")", "_")
	specialLetters   = strings.NewReplacer("ß", "ss", "æ", "ae", "Æ", "AE", "ø", "o", "Ø", "O", "œ", "oe", "Œ", "OE", "ł", "l", "Ł", "L", "đ", "d", "Đ", "D")
	errUnknownCoding = errors.New("unknown encoding")
)

type loadOptions struct {
	encoding         string
	renameDuplicates bool
}

type Option func(*loadOptions)

// WithEncoding skips the encoding detection. Known values are utf-8,
// cp1252 and utf-16-le.
func WithEncoding(encoding string) Option {
	return func(o *loadOptions) { o.encoding = encoding }
}

// WithRenameDuplicates suffixes repeated headers with _1, _2 and so on
// instead of rejecting the file.
func WithRenameDuplicates() Option {
	return func(o *loadOptions) { o.renameDuplicates = true }
}

// Row is a data line of a loaded file. Values are trimmed and keyed by
// the identifier form of their header.
type Row struct {
	Number int
	values map[string]string
}

func (r Row) Has(col string) bool {
	_, ok := r.values[col]
	return ok
}

// Get returns the value of the column, or an empty string if the file has
// no such column.
func (r Row) Get(col string) string {
	return r.values[col]
}

// NewRow builds a row from identifier keyed values.
func NewRow(number int, values map[string]string) Row {
	return Row{Number: number, values: values}
}

type CSVFile struct {
	// Headers are the normalized headers, mapped onto the expected ones.
	Headers []string
	Lines   []Row
}

func (f *CSVFile) HasHeader(header string) bool {
	for _, h := range f.Headers {
		if h == header {
			return true
		}
	}
	return false
}

// Upload is an uploaded file with the mimetype the client sent.
type Upload struct {
	Body     io.Reader
	Mimetype string
}

// loadUploads loads the named uploads in order and collects the load
// errors.
func loadUploads(names []string, uploads map[string]Upload, expected map[string][]string) (map[string]*CSVFile, []FileImportError) {
	files := map[string]*CSVFile{}
	var errs []FileImportError
	for _, name := range names {
		u := uploads[name]
		if u.Body == nil {
			errs = append(errs, FileImportError{Filename: name, Error: msgEmptyFile})
			continue
		}
		file, ferr := LoadCSV(u.Body, u.Mimetype, expected[name], name)
		if ferr != nil {
			errs = append(errs, *ferr)
			continue
		}
		files[name] = file
	}
	return files, errs
}

// LoadCSV reads a csv or xlsx file and matches its headers against the
// expected ones. Every line is read up front, so malformed files are
// reported here and not while iterating.
func LoadCSV(r io.Reader, mimetype string, expected []string, filename string, opts ...Option) (*CSVFile, *FileImportError) {
	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	fail := func(msg string) (*CSVFile, *FileImportError) {
		return nil, &FileImportError{Error: msg, Filename: filename}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		log.WithError(err).Warn("reading upload failed")
		return fail(msgInvalidFile)
	}

	var records [][]string
	if isExcel(mimetype) {
		records, err = excelRecords(data)
		if err != nil {
			log.WithError(err).WithField("filename", filename).Debug("xlsx conversion failed")
			return fail(msgInvalidExcel)
		}
		if len(records) == 0 {
			return fail(msgEmptyFile)
		}
	} else {
		text, err := decode(data, o.encoding)
		if err != nil {
			return fail(msgInvalidFile)
		}
		if strings.TrimSpace(text) == "" {
			return fail(msgEmptyFile)
		}
		var msg string
		records, msg = readRecords(text, sniff(text))
		if msg != "" {
			return fail(msg)
		}
	}

	file, msg := newCSVFile(records, expected, o.renameDuplicates)
	if msg != "" {
		return fail(msg)
	}
	return file, nil
}

func isExcel(mimetype string) bool {
	mt := strings.ToLower(strings.TrimSpace(strings.Split(mimetype, ";")[0]))
	return mt != "" && mt != "text/plain" && mt != "text/csv"
}

// decode returns the text of the file. Without an explicit encoding the
// file is read as UTF-8 if valid and as Windows-1252 otherwise.
func decode(data []byte, encoding string) (string, error) {
	var text string
	switch strings.ToLower(strings.ReplaceAll(encoding, "_", "-")) {
	case "":
		if utf8.Valid(data) {
			text = string(data)
			break
		}
		out, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return "", err
		}
		text = string(out)
	case "utf-8", "utf8":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("decode utf-8: invalid byte sequence")
		}
		text = string(data)
	case "cp1252", "windows-1252":
		out, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return "", err
		}
		text = string(out)
	case "utf-16-le", "utf-16le":
		out, err := xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM).NewDecoder().Bytes(data)
		if err != nil {
			return "", err
		}
		text = string(out)
	default:
		return "", fmt.Errorf("%w: %s", errUnknownCoding, encoding)
	}
	return strings.TrimPrefix(text, "\ufeff"), nil
}

// sniff guesses the delimiter from the start of the text, then from the
// whole text and finally from the header line alone. Files without any
// known delimiter are read as single column files.
func sniff(text string) rune {
	if utf8.RuneCountInString(text) > sniffSize {
		if d, ok := guessDelimiter([]rune(text)[:sniffSize], true); ok {
			return d
		}
	}
	if d, ok := guessDelimiter([]rune(text), false); ok {
		return d
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		if d, ok := guessDelimiter([]rune(text[:i]), false); ok {
			return d
		}
	}
	return ','
}

// guessDelimiter picks the delimiter occurring the same number of times
// on every line. The last line of a truncated sample is ignored.
func guessDelimiter(sample []rune, truncated bool) (rune, bool) {
	lines := strings.Split(strings.ReplaceAll(string(sample), "\r\n", "\n"), "\n")
	if truncated && len(lines) > 1 {
		lines = lines[:len(lines)-1]
	}

	var best rune
	bestCount := 0
	for _, d := range delimiters {
		count, consistent := -1, true
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			n := countDelimiter(line, d)
			if count == -1 {
				count = n
			} else if n != count {
				consistent = false
				break
			}
		}
		if consistent && count > bestCount {
			best, bestCount = d, count
		}
	}
	return best, bestCount > 0
}

func countDelimiter(line string, d rune) int {
	n, quoted := 0, false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}

// readRecords splits the text into records. Empty lines are only allowed
// at the end of the file.
func readRecords(text string, delimiter rune) ([][]string, string) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	lastLine := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, msgInvalidFile
		}

		start, _ := r.FieldPos(0)
		if start > lastLine+1 {
			return nil, msgEmptyLine
		}
		end, _ := r.FieldPos(len(record) - 1)
		lastLine = end + strings.Count(record[len(record)-1], "\n")

		records = append(records, record)
	}
	return records, ""
}

type column struct {
	index int
	name  string
}

func newCSVFile(records [][]string, expected []string, renameDuplicates bool) (*CSVFile, string) {
	if len(records) == 0 {
		return nil, msgEmptyFile
	}

	columns := parseHeader(records[0], renameDuplicates)
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.name
	}
	names, msg := matchHeaders(names, expected)
	if msg != "" {
		return nil, msg
	}

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = AsValidIdentifier(name)
	}

	file := &CSVFile{Headers: names, Lines: make([]Row, 0, len(records)-1)}
	for ix, record := range records[1:] {
		values := make(map[string]string, len(columns))
		for i, c := range columns {
			if c.index >= len(record) {
				return nil, msgInvalidFile
			}
			values[keys[i]] = strings.TrimSpace(record[c.index])
		}
		file.Lines = append(file.Lines, Row{Number: ix + 2, values: values})
	}
	return file, ""
}

func parseHeader(record []string, renameDuplicates bool) []column {
	columns := make([]column, 0, len(record))
	seen := map[string]int{}
	for i, raw := range record {
		if raw == "" {
			continue
		}
		name := NormalizeHeader(raw)
		if renameDuplicates {
			if n, ok := seen[name]; ok {
				seen[name] = n + 1
				name = fmt.Sprintf("%s_%d", name, n+1)
			} else {
				seen[name] = 0
			}
		}
		columns = append(columns, column{index: i, name: name})
	}
	return columns
}

// matchHeaders maps the file headers onto the expected headers using the
// Levenshtein distance. A header only matches if it is closer to an
// expected header than any two headers are to each other.
func matchHeaders(headers, expected []string) ([]string, string) {
	seen := map[string]struct{}{}
	for _, h := range headers {
		if _, ok := seen[h]; ok {
			return nil, msgDuplicates
		}
		seen[h] = struct{}{}
	}
	if len(expected) == 0 {
		return headers, ""
	}

	sane := len(expected[0])
	for _, e := range expected {
		sane = min(sane, len(e))
	}
	if len(headers) > 1 {
		sane = min(sane, minDistance(headers))
	}
	if len(expected) > 1 {
		sane = min(sane, minDistance(expected))
	}

	mapping := map[string]string{}
	var missing []string
	ambiguous := false
	for _, e := range expected {
		normalized := NormalizeHeader(e)
		closest, matches, match := -1, 0, ""
		for _, h := range headers {
			d := levenshtein.ComputeDistance(normalized, h)
			switch {
			case closest == -1 || d < closest:
				closest, matches, match = d, 1, h
			case d == closest:
				matches++
			}
		}
		if closest == -1 || closest >= sane {
			missing = append(missing, e)
			continue
		}
		if matches > 1 {
			ambiguous = true
			continue
		}
		mapping[match] = e
	}
	if len(missing) > 0 {
		return nil, fmt.Sprintf("Missing columns: '%s'", strings.Join(missing, ", "))
	}
	if ambiguous {
		return nil, msgAmbiguous
	}

	out := make([]string, len(headers))
	for i, h := range headers {
		if m, ok := mapping[h]; ok {
			out[i] = m
		} else {
			out[i] = h
		}
	}
	return out, ""
}

func minDistance(values []string) int {
	best := -1
	for i := range values {
		for j := i + 1; j < len(values); j++ {
			d := levenshtein.ComputeDistance(values[i], values[j])
			if best == -1 || d < best {
				best = d
			}
		}
	}
	return best
}

// NormalizeHeader trims, lowercases and transliterates a header to ASCII
// and collapses its whitespace.
func NormalizeHeader(header string) string {
	header = strings.ToLower(strings.TrimSpace(header))
	header = transliterate(header)
	return strings.TrimSpace(whitespace.ReplaceAllString(header, " "))
}

// AsValidIdentifier turns a header into the key used to access row
// values, e.g. "01.Alg Junge" becomes "alg_junge".
func AsValidIdentifier(header string) string {
	value := identifierChars.Replace(NormalizeHeader(header))
	return strings.TrimLeft(value, "_0123456789")
}

func transliterate(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, specialLetters.Replace(s))
	if err != nil {
		out = s
	}
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, out)
}
