package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocales(t *testing.T) {
	t.Setenv("LOCALES", "fr_CH, de_CH,,")
	assert.Equal(t, []string{"fr_CH", "de_CH"}, Locales())

	t.Setenv("LOCALES", "")
	assert.Equal(t, "de_CH", Locales()[0])
}

func TestCreateUniqueInstance(t *testing.T) {
	id := CreateUniqueInstance("test")
	assert.Len(t, id, 36)
	assert.Equal(t, id, GetInstanceId())
}
