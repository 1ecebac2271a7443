package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Revision)
	assert.Equal(t, "claude-sync", AppName)

	assert.Contains(t, Short(), Version)
	assert.Contains(t, Short(), Revision)
	assert.True(t, strings.HasPrefix(ShortWithApp(), AppName+" "))
	assert.Contains(t, Detailed(), "/")
	assert.True(t, strings.HasPrefix(DetailedWithApp(), AppName+" "))
}

func TestApplyBuildInfo(t *testing.T) {
	origVersion, origRevision, origBuildDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origBuildDate
	})

	t.Run("fills placeholders", func(t *testing.T) {
		Version, Revision, BuildDate = devVersion, "HEAD", ""
		applyBuildInfo("v1.2.3", map[string]string{
			"vcs.revision": "abc123",
			"vcs.modified": "true",
			"vcs.time":     "2025-01-01T00:00:00Z",
		})
		assert.Equal(t, "1.2.3", Version)
		assert.Equal(t, "abc123-dirty", Revision)
		assert.Equal(t, "2025-01-01T00:00:00Z", BuildDate)
	})

	t.Run("keeps ldflags values", func(t *testing.T) {
		Version, Revision, BuildDate = "2.0.0", "deadbeef", "yesterday"
		applyBuildInfo("(devel)", map[string]string{"vcs.revision": "abc123"})
		assert.Equal(t, "2.0.0", Version)
		assert.Equal(t, "deadbeef", Revision)
		assert.Equal(t, "yesterday", BuildDate)
	})
}
