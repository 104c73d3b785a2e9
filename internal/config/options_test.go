package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchivePreset(t *testing.T) {
	o := Archive()
	assert.True(t, o.Perms)
	assert.True(t, o.Times)
	assert.True(t, o.Owner)
	assert.True(t, o.Group)
	assert.True(t, o.Symlinks)
	assert.True(t, o.Devices)
	assert.True(t, o.HardLinks)
	assert.False(t, o.Xattr)
	assert.False(t, o.ACL)
	assert.False(t, o.DryRun)
}

func TestResolvedConcurrencyDefaultsWhenUnset(t *testing.T) {
	o := Options{}
	assert.Greater(t, o.ResolvedConcurrency(), 0)
}

func TestResolvedConcurrencyHonorsExplicitValue(t *testing.T) {
	o := Options{Concurrency: 7}
	assert.Equal(t, 7, o.ResolvedConcurrency())
}

func TestNilFilterIsValidZeroValue(t *testing.T) {
	var o Options
	assert.Nil(t, o.Filter)
}
