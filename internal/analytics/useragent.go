package analytics

import "strings"

// Browser and OS names reported by ParseUserAgent
const (
	BrowserEdge    = "Edge"
	BrowserChrome  = "Chrome"
	BrowserFirefox = "Firefox"
	BrowserSafari  = "Safari"
	BrowserOpera   = "Opera"

	OSWindows = "Windows"
	OSMac     = "macOS"
	OSLinux   = "Linux"
	OSAndroid = "Android"
	OSIOS     = "iOS"

	Other = "Other"
)

// UserAgent is the coarse client classification of a request
type UserAgent struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
}

// ParseUserAgent classifies ua by substring. The checks run in a fixed
// order: Edge advertises Chrome and Chrome advertises Safari, so the more
// specific token must win. Android agents also contain "linux" and are
// reported as Linux.
func ParseUserAgent(ua string) UserAgent {
	s := strings.ToLower(ua)
	return UserAgent{Browser: browser(s), OS: operatingSystem(s)}
}

func browser(s string) string {
	switch {
	case strings.Contains(s, "edg/"):
		return BrowserEdge
	case strings.Contains(s, "chrome/"):
		return BrowserChrome
	case strings.Contains(s, "firefox/"):
		return BrowserFirefox
	case strings.Contains(s, "safari/") && !strings.Contains(s, "chrome"):
		return BrowserSafari
	case strings.Contains(s, "opr/"), strings.Contains(s, "opera/"):
		return BrowserOpera
	default:
		return Other
	}
}

func operatingSystem(s string) string {
	switch {
	case strings.Contains(s, "windows"):
		return OSWindows
	case strings.Contains(s, "macintosh"), strings.Contains(s, "mac os x"):
		return OSMac
	case strings.Contains(s, "linux"):
		return OSLinux
	case strings.Contains(s, "android"):
		return OSAndroid
	case strings.Contains(s, "iphone"), strings.Contains(s, "ipad"):
		return OSIOS
	default:
		return Other
	}
}
