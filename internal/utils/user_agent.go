package utils

import (
	"strings"
)

var botMarkers = []string{"bot", "crawler", "spider", "slurp", "facebookexternalhit", "preview", "curl", "wget", "python-requests", "headless"}

var tabletMarkers = []string{"ipad", "tablet", "kindle", "silk", "playbook"}

var mobileMarkers = []string{"mobi", "iphone", "ipod", "android", "windows phone", "blackberry", "opera mini"}

// ContainsAny checks if a string contains any of the substrings
func ContainsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

// DeviceClass buckets a user agent into bot, tablet, mobile or desktop
func DeviceClass(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "" || ContainsAny(ua, botMarkers):
		return "bot"
	case ContainsAny(ua, tabletMarkers):
		return "tablet"
	// android without "mobile" is a tablet
	case strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return "tablet"
	case ContainsAny(ua, mobileMarkers):
		return "mobile"
	default:
		return "desktop"
	}
}
