package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	from, to, err := parseRange("", "")
	require.NoError(t, err)
	assert.Nil(t, from)
	assert.Nil(t, to)

	from, to, err = parseRange("2026-03-02T00:00:00Z", "2026-03-02T06:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, to.Sub(*from))

	_, _, err = parseRange("2026-03-02T00:00:00Z", "")
	assert.Error(t, err)
	_, _, err = parseRange("yesterday", "2026-03-02T06:00:00Z")
	assert.Error(t, err)
}
