//nolint:testpackage // Tests exercise unexported rule internals
package issue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRuleSet(t *testing.T) {
	rs := DefaultRuleSet()

	assert.True(t, rs.WidgetAvailable(FeatureAltText))
	assert.True(t, rs.WidgetAvailable(FeatureContrast))
	assert.False(t, rs.WidgetAvailable(FeatureKeyboard))
	assert.False(t, rs.AttemptCodeFirst)
}

func TestParseRuleSet(t *testing.T) {
	data := []byte(`
widget_features:
  - alt-text
  - media
attempt_code_first: true
`)

	rs, err := ParseRuleSet(data)
	require.NoError(t, err)

	assert.True(t, rs.WidgetAvailable(FeatureAltText))
	assert.True(t, rs.WidgetAvailable(FeatureMedia))
	assert.False(t, rs.WidgetAvailable(FeatureContrast))
	assert.True(t, rs.AttemptCodeFirst)
}

func TestParseRuleSet_UnknownFeature(t *testing.T) {
	data := []byte(`
widget_features:
  - alt-text
  - hologram
`)

	_, err := ParseRuleSet(data)
	assert.ErrorIs(t, err, ErrUnknownFeature)
}

func TestParseRuleSet_InvalidYAML(t *testing.T) {
	_, err := ParseRuleSet([]byte("widget_features: [broken"))
	assert.Error(t, err)
}

func TestLoadRuleSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
widget_features:
  - focus
`), 0o600))

	rs, err := LoadRuleSet(path)
	require.NoError(t, err)
	assert.True(t, rs.WidgetAvailable(FeatureFocus))
	assert.False(t, rs.WidgetAvailable(FeatureAltText))

	_, err = LoadRuleSet(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
