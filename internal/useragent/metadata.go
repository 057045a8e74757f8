// File: internal/useragent/metadata.go
package useragent

import (
	"errors"
	"strings"

	"github.com/chromedp/cdproto/emulation"
)

// Brand names sent in the Sec-CH-UA Client Hints headers. The first entry is
// the GREASE brand Chrome ships to keep servers from sniffing the list shape.
const (
	greaseBrand        = "Not)A;Brand"
	greaseBrandVersion = "8"
	chromiumBrand      = "Chromium"
	chromeBrand        = "Google Chrome"
)

// ErrNotChrome is returned when a user-agent string carries no Chrome
// version token to derive metadata from.
var ErrNotChrome = errors.New("user agent has no Chrome version token")

// BrandVersion is one (brand, version) pair of the Client Hints brand list.
type BrandVersion struct {
	Brand   string
	Version string
}

// Metadata is the structured wire-level identity matching a user-agent
// string. It mirrors what Chrome reports through the Sec-CH-UA-* headers and
// navigator.userAgentData.
type Metadata struct {
	Architecture    string
	Bitness         string
	Brands          []BrandVersion
	FullVersionList []BrandVersion
	Mobile          bool
	Model           string
	Platform        string
	PlatformVersion string
	FullVersion     string
	Wow64           bool
}

// Derive parses a user-agent string into the metadata Chrome itself would
// report for that identity. The derivation is deterministic: the same string
// always yields the same metadata.
func Derive(ua string) (Metadata, error) {
	major, full := chromeVersions(ua)
	if major == "" {
		return Metadata{}, ErrNotChrome
	}

	platform, platformVersion := platformOf(ua)

	return Metadata{
		Architecture: "x86",
		Bitness:      "64",
		Brands: []BrandVersion{
			{Brand: greaseBrand, Version: greaseBrandVersion},
			{Brand: chromiumBrand, Version: major},
			{Brand: chromeBrand, Version: major},
		},
		FullVersionList: []BrandVersion{
			{Brand: greaseBrand, Version: greaseBrandVersion + ".0.0.0"},
			{Brand: chromiumBrand, Version: full},
			{Brand: chromeBrand, Version: full},
		},
		Mobile:          strings.Contains(ua, "Mobile"),
		Model:           "",
		Platform:        platform,
		PlatformVersion: platformVersion,
		FullVersion:     full,
		Wow64:           strings.Contains(ua, "WOW64"),
	}, nil
}

// CDP converts the metadata into its DevTools Protocol representation for
// Emulation.setUserAgentOverride.
func (m Metadata) CDP() *emulation.UserAgentMetadata {
	return &emulation.UserAgentMetadata{
		Architecture:    m.Architecture,
		Bitness:         m.Bitness,
		Brands:          cdpBrands(m.Brands),
		FullVersionList: cdpBrands(m.FullVersionList),
		Mobile:          m.Mobile,
		Model:           m.Model,
		Platform:        m.Platform,
		PlatformVersion: m.PlatformVersion,
		Wow64:           m.Wow64,
	}
}

func cdpBrands(brands []BrandVersion) []*emulation.UserAgentBrandVersion {
	out := make([]*emulation.UserAgentBrandVersion, 0, len(brands))
	for _, b := range brands {
		out = append(out, &emulation.UserAgentBrandVersion{Brand: b.Brand, Version: b.Version})
	}
	return out
}

// chromeVersions extracts the major and full Chrome version from a
// user-agent string. Both are empty when no Chrome token is present.
func chromeVersions(ua string) (major, full string) {
	const marker = "Chrome/"
	idx := strings.Index(ua, marker)
	if idx < 0 {
		return "", ""
	}
	rest := ua[idx+len(marker):]
	if end := strings.IndexAny(rest, " ;)"); end >= 0 {
		rest = rest[:end]
	}
	full = strings.TrimSpace(rest)
	if full == "" {
		return "", ""
	}
	major = full
	if dot := strings.Index(full, "."); dot >= 0 {
		major = full[:dot]
	}
	return major, full
}

// platformOf maps the user-agent platform section to the Client Hints
// platform name and a canonical three-part version.
func platformOf(ua string) (name, version string) {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows", canonicalVersion(versionAfter(ua, "Windows NT "))
	case strings.Contains(ua, "Macintosh"):
		raw := versionAfter(ua, "Mac OS X ")
		return "macOS", canonicalVersion(strings.ReplaceAll(raw, "_", "."))
	case strings.Contains(ua, "Android"):
		return "Android", canonicalVersion(versionAfter(ua, "Android "))
	case strings.Contains(ua, "Linux"):
		return "Linux", ""
	default:
		return "Unknown", ""
	}
}

// versionAfter returns the version token following a marker, cut at the
// first delimiter.
func versionAfter(ua, marker string) string {
	idx := strings.Index(ua, marker)
	if idx < 0 {
		return ""
	}
	rest := ua[idx+len(marker):]
	if end := strings.IndexAny(rest, " ;)"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// canonicalVersion pads or truncates a dotted version to three components.
func canonicalVersion(v string) string {
	if v == "" {
		return ""
	}
	parts := strings.Split(v, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return strings.Join(parts[:3], ".")
}
