package solana

import "strings"

// HTTPEndpoint converts a streaming URL to its request/response form.
// Only the scheme prefix is substituted; host and path are kept as-is.
func HTTPEndpoint(url string) string {
	url = strings.TrimSpace(url)
	switch {
	case strings.HasPrefix(url, "wss://"):
		return "https://" + strings.TrimPrefix(url, "wss://")
	case strings.HasPrefix(url, "ws://"):
		return "http://" + strings.TrimPrefix(url, "ws://")
	}
	return url
}

// WSEndpoint converts a request/response URL to its streaming form.
func WSEndpoint(url string) string {
	url = strings.TrimSpace(url)
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
