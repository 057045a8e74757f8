// internal/browser/identity.go
package browser

import (
	"github.com/chromedp/cdproto/emulation"

	"github.com/xkilldash9x/clearance-cli/internal/useragent"
)

// emulationOverride builds the combined user agent and client-hint override
// command. Grouping both in one params object keeps the override atomic.
func emulationOverride(ua string, md useragent.Metadata) *emulation.SetUserAgentOverrideParams {
	return emulation.SetUserAgentOverride(ua).WithUserAgentMetadata(md.CDP())
}
