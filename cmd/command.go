// -- cmd/command.go --
package cmd

import (
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/network"
)

// fetchCommandTemplate is the shape of every generated download command.
const fetchCommandTemplate = `%s: %s --header "Cookie: %s" --header "User-Agent: %s" %s`

// cookieHeader renders cookies as a single Cookie header value.
func cookieHeader(cookies []*network.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// formatFetchCommand fills the command template for one download tool.
func formatFetchCommand(name, binary, cookies, userAgent, urlArg string) string {
	return fmt.Sprintf(fetchCommandTemplate, name, binary, cookies, userAgent, urlArg)
}

// curlURLArg prefixes the target with curl's proxy switch when the solve ran
// through a proxy. Attached browsers carry their own proxy settings, so no
// switch is emitted for them.
func curlURLArg(target, proxy string, standalone bool) string {
	if proxy != "" && standalone {
		return fmt.Sprintf("--proxy %s %s", proxy, target)
	}
	return target
}

// aria2URLArg mirrors curlURLArg using aria2's --all-proxy switch.
func aria2URLArg(target, proxy string, standalone bool) string {
	if proxy != "" && standalone {
		return fmt.Sprintf("--all-proxy %s %s", proxy, target)
	}
	return target
}

// aria2ProxyUnsupported reports whether the proxy scheme is one aria2 cannot
// speak. SOCKS proxies silently fail there, so the caller warns instead.
func aria2ProxyUnsupported(proxy string) bool {
	return strings.HasPrefix(strings.ToLower(proxy), "socks")
}
