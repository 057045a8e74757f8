// File: internal/detect/detect.go

// Package detect classifies which Cloudflare challenge platform, if any, is
// present in raw page markup. It is pure string inspection and never touches
// the live browser.
package detect

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Platform identifies the remediation flow a challenged page requires.
type Platform int

const (
	// PlatformScriptOnly is the invisible JavaScript challenge.
	PlatformScriptOnly Platform = iota + 1
	// PlatformManaged is the managed/background check.
	PlatformManaged
	// PlatformInteractive is the widget that must be clicked.
	PlatformInteractive
)

// String returns the wire value embedded in the challenge page config.
func (p Platform) String() string {
	switch p {
	case PlatformScriptOnly:
		return "non-interactive"
	case PlatformManaged:
		return "managed"
	case PlatformInteractive:
		return "interactive"
	default:
		return fmt.Sprintf("Platform(%d)", int(p))
	}
}

// markerTable pins the substrings that identify each platform inside the
// challenge page's inline config object. The markers are an undocumented
// implementation detail of the remote service; when they change, only this
// table changes. Order is the fixed classification order.
//
// Table version 1: cType markers as emitted by challenge pages since 2023.
const markerTableVersion = 1

var markerTable = []struct {
	platform Platform
	marker   string
}{
	{PlatformScriptOnly, "cType: 'non-interactive'"},
	{PlatformManaged, "cType: 'managed'"},
	{PlatformInteractive, "cType: 'interactive'"},
}

// TableVersion reports the marker table revision in use, for logging and
// result metadata.
func TableVersion() int { return markerTableVersion }

// Classify scans page markup for a challenge platform marker, checking the
// table in its fixed order and returning the first hit. The boolean is false
// when no marker matches; an unchallenged page is not an error.
func Classify(markup string) (Platform, bool) {
	for _, entry := range markerTable {
		if strings.Contains(markup, entry.marker) {
			return entry.platform, true
		}
	}
	return 0, false
}

// Title extracts the document title from markup, for log context. Returns ""
// on unparsable input or a missing title.
func Title(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)
	return title
}
