package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/refsnap/internal/snapshot"
)

type staticSource struct {
	entries []snapshot.IndexEntry
}

func (s staticSource) Entries(context.Context) ([]snapshot.IndexEntry, error) {
	return s.entries, nil
}

func TestSelectEntriesByISIN(t *testing.T) {
	src := staticSource{entries: []snapshot.IndexEntry{
		{ISIN: "IE00B4L5Y983"},
		{ISIN: "LU0274208692"},
		{ISIN: "DE0001234567"},
	}}

	entries, err := selectEntries(context.Background(), src, []string{" lu0274208692 "}, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "LU0274208692", entries[0].ISIN)
}

func TestSelectEntriesLimit(t *testing.T) {
	src := staticSource{entries: []snapshot.IndexEntry{
		{ISIN: "A"}, {ISIN: "B"}, {ISIN: "C"},
	}}

	entries, err := selectEntries(context.Background(), src, nil, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].ISIN)
}

func TestSelectEntriesLimitAfterFilter(t *testing.T) {
	src := staticSource{entries: []snapshot.IndexEntry{
		{ISIN: "A"}, {ISIN: "B"}, {ISIN: "C"},
	}}

	entries, err := selectEntries(context.Background(), src, []string{"b", "c"}, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "B", entries[0].ISIN)
}
