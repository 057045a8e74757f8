// File: internal/detect/detect_test.go
package detect

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func challengePage(ctype string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head><title>Just a moment...</title>
<script>window._cf_chl_opt = { cType: '%s', cvId: '3' };</script>
</head><body><div id="challenge-body-text"></div></body></html>`, ctype)
}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name        string
		markup      string
		wantPresent bool
		want        Platform
	}{
		{
			name:        "script only",
			markup:      challengePage("non-interactive"),
			wantPresent: true,
			want:        PlatformScriptOnly,
		},
		{
			name:        "managed",
			markup:      challengePage("managed"),
			wantPresent: true,
			want:        PlatformManaged,
		},
		{
			name:        "interactive",
			markup:      challengePage("interactive"),
			wantPresent: true,
			want:        PlatformInteractive,
		},
		{
			name:   "plain page",
			markup: "<html><body><h1>Welcome</h1></body></html>",
		},
		{
			name:   "empty markup",
			markup: "",
		},
		{
			name:   "unknown challenge type",
			markup: challengePage("something-new"),
		},
		{
			name:   "marker with double quotes does not match",
			markup: `<script>cType: "managed"</script>`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, present := Classify(tc.markup)
			require.Equal(t, tc.wantPresent, present)
			if tc.wantPresent {
				assert.Equal(t, tc.want, got)
			} else {
				assert.Zero(t, got)
			}
		})
	}
}

func TestClassifyOrderIsFixed(t *testing.T) {
	// When several markers appear, the first table entry wins.
	markup := challengePage("interactive") + challengePage("non-interactive")
	got, present := Classify(markup)
	require.True(t, present)
	assert.Equal(t, PlatformScriptOnly, got)
}

func TestPlatformString(t *testing.T) {
	assert.Equal(t, "non-interactive", PlatformScriptOnly.String())
	assert.Equal(t, "managed", PlatformManaged.String())
	assert.Equal(t, "interactive", PlatformInteractive.String())
	assert.Equal(t, "Platform(99)", Platform(99).String())
}

func TestTableVersion(t *testing.T) {
	assert.Equal(t, 1, TableVersion())
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Just a moment...", Title(challengePage("managed")))
	assert.Equal(t, "", Title("<html><body>no title</body></html>"))
	assert.Equal(t, "", Title(""))
	assert.Equal(t, "trimmed", Title("<title>\n  trimmed \t</title>"))
}
