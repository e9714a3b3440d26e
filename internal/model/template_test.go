package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTemplates_SortsByOrder(t *testing.T) {
	data := []byte(`
templates:
  - order: 2
    content: "still interested?"
  - order: 1
    content: "hello, is the property available?"
`)
	tmpls, err := ParseTemplates(data)
	require.NoError(t, err)
	require.Len(t, tmpls, 2)
	assert.Equal(t, 1, tmpls[0].Order)
	assert.Equal(t, 2, tmpls[1].Order)
}

func TestParseTemplates_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		msg  string
	}{
		{"duplicate", "templates:\n  - {order: 1, content: a}\n  - {order: 1, content: b}\n", "duplicate order"},
		{"zero order", "templates:\n  - {order: 0, content: a}\n", "must be positive"},
		{"empty content", "templates:\n  - {order: 3, content: \"\"}\n", "empty content"},
		{"bad yaml", "templates: [", "decode yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplates([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoadTemplates_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates:\n  - {order: 1, content: hi}\n"), 0o600))

	tmpls, err := LoadTemplates(path)
	require.NoError(t, err)
	assert.Equal(t, []Template{{Order: 1, Content: "hi"}}, tmpls)
}

func TestLoadTemplates_Missing(t *testing.T) {
	_, err := LoadTemplates(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
