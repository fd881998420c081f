package jobstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobKindFromConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  *Config
		want string
	}{
		{"import", &Config{Extra: map[string]interface{}{"model": "Letter"}}, "import"},
		{"update", &Config{Extra: map[string]interface{}{"sparql_update": "update.ru"}}, "update"},
		{"publish", &Config{Extra: map[string]interface{}{"action": "publish"}}, "publish"},
		{"no extra", &Config{}, "unknown"},
		{"nil extra", &Config{Extra: nil}, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, jobKind(tc.cfg))
		})
	}
}

func TestNilCatalogMethodsAreNoOps(t *testing.T) {
	var catalog *Catalog

	require.NoError(t, catalog.Upsert(&CatalogEntry{JobID: "job1"}))
	require.NoError(t, catalog.MarkRun("job1", "running"))

	entries, err := catalog.List()
	require.NoError(t, err)
	assert.Nil(t, entries)
}
