package formats

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"
)

var (
	listIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)
	colorPattern  = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// ValidationError is the message of a value which could not be parsed.
type ValidationError string

func (e ValidationError) Error() string { return string(e) }

func errEmpty(col string) error {
	return ValidationError("Empty value: " + col)
}

// IntegerOptions tune ValidateInteger. The zero value returns 0 for empty
// values and fails for missing columns.
type IntegerOptions struct {
	// RejectEmpty fails on empty values instead of returning Default.
	RejectEmpty bool
	Default     int
	// Optional returns Default if the file has no such column.
	Optional bool
}

// ValidateInteger parses the column as integer.
func ValidateInteger(row Row, col string, opts ...IntegerOptions) (int, error) {
	o := IntegerOptions{}
	if len(opts) > 0 {
		o = opts[0]
	}
	v, err := validateInteger(row, col, o.RejectEmpty, o.Optional)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return o.Default, nil
	}
	return *v, nil
}

// ValidateNullableInteger parses the column as integer and returns nil for
// empty values, and for missing columns if optional is set.
func ValidateNullableInteger(row Row, col string, optional bool) (*int, error) {
	return validateInteger(row, col, false, optional)
}

func validateInteger(row Row, col string, rejectEmpty, optional bool) (*int, error) {
	if !row.Has(col) && optional {
		return nil, nil
	}
	value := row.Get(col)
	if value == "" {
		if rejectEmpty {
			return nil, errEmpty(col)
		}
		return nil, nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return nil, ValidationError("Invalid integer: " + col)
	}
	return &v, nil
}

// ValidateNumeric parses the column as decimal rounded half to even to
// scale digits. Precision is the width of the stored column and does not
// limit the value. Empty values and missing optional columns are returned
// as null.
func ValidateNumeric(row Row, col string, precision, scale int, optional bool) (decimal.NullDecimal, error) {
	if !row.Has(col) && optional {
		return decimal.NullDecimal{}, nil
	}
	value := row.Get(col)
	if value == "" {
		return decimal.NullDecimal{}, nil
	}
	invalid := ValidationError("Invalid decimal number: " + col)
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.NullDecimal{}, invalid
	}
	return decimal.NewNullDecimal(d.RoundBank(int32(scale))), nil
}

// ValidateListID checks the column for an alphanumeric list id such as
// 03B.04. Empty values return "0" unless rejectEmpty is set.
func ValidateListID(row Row, col string, rejectEmpty bool) (string, error) {
	value := row.Get(col)
	if value != "" {
		if listIDPattern.MatchString(value) {
			return value, nil
		}
		return "", ValidationError("Not an alphanumeric: " + col)
	}
	if rejectEmpty {
		return "", errEmpty(col)
	}
	return "0", nil
}

var genders = map[string]struct{}{"": {}, "male": {}, "female": {}, "undetermined": {}}

func ValidateGender(row Row) (string, error) {
	value := row.Get("candidate_gender")
	if _, ok := genders[value]; !ok {
		return "", ValidationError(fmt.Sprintf("Invalid gender: %s", value))
	}
	return value, nil
}

func ValidateColor(row Row, col string) (string, error) {
	value := row.Get(col)
	if value != "" && !colorPattern.MatchString(value) {
		return "", ValidationError("Invalid color: " + col)
	}
	return value, nil
}
