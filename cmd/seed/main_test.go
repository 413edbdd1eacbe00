package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCatalog(t *testing.T) {
	path := writeFile(t, `{"spots":[
		{"id":10,"name":"Gauthier","available":3,"total":20,"location":{"lat":33.59,"lon":-7.62}},
		{"id":11,"name":"Maarif","available":0,"total":15,"location":{"lat":33.58,"lon":-7.63}}
	]}`)

	f, err := loadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, path, f.Source)
	require.Len(t, f.Spots, 2)
	assert.Equal(t, "Maarif", f.Spots[1].Name)
	assert.Equal(t, 33.59, f.Spots[0].Location.Lat)
}

func TestLoadCatalog_Rejects(t *testing.T) {
	tests := map[string]string{
		"empty":     `{"spots":[]}`,
		"malformed": `{"spots":`,
		"duplicate": `{"spots":[{"id":1,"total":1},{"id":1,"total":1}]}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadCatalog(writeFile(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := loadCatalog(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
