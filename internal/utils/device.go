package utils

import (
	"net"
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo describes the device behind a socket connection
type DeviceInfo struct {
	DeviceType string `json:"device_type"` // mobile, tablet, desktop
	OS         string `json:"os"`
	Platform   string `json:"platform"` // android, ios, windows, mac, linux
	AppClient  string `json:"app_client"`
	IsBot      bool   `json:"is_bot"`
}

// ParseDevice parses a User-Agent header into device information
func ParseDevice(userAgent string) DeviceInfo {
	if userAgent == "" {
		return DeviceInfo{
			DeviceType: "unknown",
			OS:         "Unknown",
			Platform:   "unknown",
			AppClient:  "Unknown",
		}
	}

	parser := ua.New(userAgent)

	info := DeviceInfo{
		OS:        osName(parser),
		Platform:  platform(parser),
		AppClient: appClient(parser),
		IsBot:     parser.Bot(),
	}

	switch {
	case parser.Mobile() && isTablet(userAgent):
		info.DeviceType = "tablet"
	case parser.Mobile():
		info.DeviceType = "mobile"
	default:
		info.DeviceType = "desktop"
	}

	return info
}

func isTablet(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, indicator := range []string{"ipad", "tablet", "kindle", "sm-t", "nexus 9", "nexus 10"} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func osName(parser *ua.UserAgent) string {
	info := parser.OSInfo()
	if info.Name == "" {
		return "Unknown"
	}
	if info.Version != "" {
		return info.Name + " " + info.Version
	}
	return info.Name
}

// appClient names the browser or, for the native app's websocket stack, the
// product token (e.g. "okhttp", "CFNetwork").
func appClient(parser *ua.UserAgent) string {
	name, version := parser.Browser()
	if name == "" {
		name, version = parser.Engine()
	}
	if name == "" {
		return "Unknown"
	}
	if version != "" {
		return name + "/" + version
	}
	return name
}

func platform(parser *ua.UserAgent) string {
	os := strings.ToLower(parser.OSInfo().Name)
	switch {
	case strings.Contains(os, "android"):
		return "android"
	case strings.Contains(os, "ios"), strings.Contains(os, "iphone"):
		return "ios"
	case strings.Contains(os, "windows"):
		return "windows"
	case strings.Contains(os, "mac"):
		return "mac"
	case strings.Contains(os, "linux"), strings.Contains(os, "ubuntu"):
		return "linux"
	}
	return "unknown"
}

// RealIP picks the originating client address from proxy headers, falling
// back to the remote address. The first public X-Forwarded-For hop wins.
func RealIP(remoteAddr, xRealIP, xForwardedFor string) string {
	if ip := net.ParseIP(strings.TrimSpace(xRealIP)); ip != nil && !ip.IsPrivate() {
		return ip.String()
	}

	if xForwardedFor != "" {
		hops := strings.Split(xForwardedFor, ",")
		for _, hop := range hops {
			ip := net.ParseIP(strings.TrimSpace(hop))
			if ip != nil && !ip.IsPrivate() && !ip.IsLoopback() {
				return ip.String()
			}
		}
		if ip := net.ParseIP(strings.TrimSpace(hops[0])); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
