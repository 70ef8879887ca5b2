package replay

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLog(t *testing.T) {
	log := strings.Join([]string{
		"2024-01-01 tracker started",
		"REQUEST: /announce?info_hash=a&peer_id=p1",
		"REQUEST:   scrape?info_hash=b  ",
		"RESPONSE: d8:intervali1800ee",
		"REQUEST: ",
		"REQUEST: /announce?info_hash=c",
	}, "\n")

	entries, err := ReadLog(strings.NewReader(log))
	require.NoError(t, err)
	want := []string{
		"/announce?info_hash=a&peer_id=p1",
		"/scrape?info_hash=b",
		"/announce?info_hash=c",
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatal(diff)
	}
}

func TestReadLogEmpty(t *testing.T) {
	_, err := ReadLog(strings.NewReader("nothing here\n"))
	assert.Error(t, err)
}

func TestLoadLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.log")
	require.NoError(t, os.WriteFile(path, []byte("REQUEST: /announce?x=1\n"), 0o644))

	entries, err := LoadLog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/announce?x=1"}, entries)

	_, err = LoadLog(filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)
}
