package formats

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInteger(t *testing.T) {
	row := NewRow(2, map[string]string{"a": "12", "b": "", "c": "1.5", "d": "-3"})

	v, err := ValidateInteger(row, "a")
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	v, err = ValidateInteger(row, "d")
	require.NoError(t, err)
	assert.Equal(t, -3, v)

	v, err = ValidateInteger(row, "b", IntegerOptions{Default: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = ValidateInteger(row, "b", IntegerOptions{RejectEmpty: true})
	assert.EqualError(t, err, "Empty value: b")

	_, err = ValidateInteger(row, "c")
	assert.EqualError(t, err, "Invalid integer: c")

	v, err = ValidateInteger(row, "missing", IntegerOptions{Optional: true, Default: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	nullable, err := ValidateNullableInteger(row, "b", false)
	require.NoError(t, err)
	assert.Nil(t, nullable)

	nullable, err = ValidateNullableInteger(row, "a", true)
	require.NoError(t, err)
	require.NotNil(t, nullable)
	assert.Equal(t, 12, *nullable)
}

func TestValidateNumeric(t *testing.T) {
	row := NewRow(2, map[string]string{
		"plain":  "4000",
		"round":  "1000.005",
		"scaled": "12.5",
		"big":    "123456789012.345",
		"text":   "xxx",
		"empty":  "",
	})

	for col, want := range map[string]string{
		"plain":  "4000",
		"round":  "1000",
		"scaled": "12.5",
		"big":    "123456789012.34",
	} {
		v, err := ValidateNumeric(row, col, 12, 2, false)
		require.NoError(t, err, col)
		require.True(t, v.Valid, col)
		assert.True(t, decimal.RequireFromString(want).Equal(v.Decimal), "%s: %s", col, v.Decimal)
	}

	_, err := ValidateNumeric(row, "text", 12, 2, false)
	assert.EqualError(t, err, "Invalid decimal number: text")

	v, err := ValidateNumeric(row, "empty", 12, 2, false)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	v, err = ValidateNumeric(row, "missing", 12, 2, true)
	require.NoError(t, err)
	assert.False(t, v.Valid)
}

func TestValidateListID(t *testing.T) {
	row := NewRow(2, map[string]string{"a": "03B.04", "b": "", "c": "x x"})

	id, err := ValidateListID(row, "a", true)
	require.NoError(t, err)
	assert.Equal(t, "03B.04", id)

	id, err = ValidateListID(row, "b", false)
	require.NoError(t, err)
	assert.Equal(t, "0", id)

	_, err = ValidateListID(row, "b", true)
	assert.EqualError(t, err, "Empty value: b")

	_, err = ValidateListID(row, "c", false)
	assert.EqualError(t, err, "Not an alphanumeric: c")
}

func TestValidateGenderAndColor(t *testing.T) {
	gender, err := ValidateGender(NewRow(2, map[string]string{"candidate_gender": "female"}))
	require.NoError(t, err)
	assert.Equal(t, "female", gender)

	_, err = ValidateGender(NewRow(2, map[string]string{"candidate_gender": "xxx"}))
	assert.EqualError(t, err, "Invalid gender: xxx")

	color, err := ValidateColor(NewRow(2, map[string]string{"color": "#aaBB00"}), "color")
	require.NoError(t, err)
	assert.Equal(t, "#aaBB00", color)

	_, err = ValidateColor(NewRow(2, map[string]string{"color": "blue"}), "color")
	assert.EqualError(t, err, "Invalid color: color")
}
