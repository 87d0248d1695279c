package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeID(t *testing.T) {
	want := NormalizeID("ab123")
	assert.Equal(t, "ab123", want)
	assert.Equal(t, want, NormalizeID("AB-12-3"))
	assert.Equal(t, want, NormalizeID(" ab123 "))
	assert.Equal(t, want, NormalizeID("\tAB-123\n"))
	assert.Equal(t, "", NormalizeID(""))
	assert.Equal(t, "", NormalizeID(" - "))
}

func TestSameID(t *testing.T) {
	assert.True(t, SameID("S-001", "s001"))
	assert.False(t, SameID("S-001", "S-002"))
	assert.False(t, SameID("", ""))
	assert.False(t, SameID("-", " "))
}
