package model

import (
	"fmt"
	"strings"
)

// Platform is the canonical short code of a target mini-app platform.
type Platform string

const (
	PlatformToutiao  Platform = "tt"
	PlatformKuaishou Platform = "ks"
	PlatformWeixin   Platform = "wx"
	PlatformBaidu    Platform = "bd"
)

// Platforms lists every platform code in the order generated modules carry them.
var Platforms = []Platform{PlatformToutiao, PlatformKuaishou, PlatformWeixin, PlatformBaidu}

var platformAliases = map[string]Platform{
	"tt":          PlatformToutiao,
	"toutiao":     PlatformToutiao,
	"douyin":      PlatformToutiao,
	"mp-toutiao":  PlatformToutiao,
	"ks":          PlatformKuaishou,
	"kuaishou":    PlatformKuaishou,
	"mp-kuaishou": PlatformKuaishou,
	"wx":          PlatformWeixin,
	"weixin":      PlatformWeixin,
	"wechat":      PlatformWeixin,
	"mp-weixin":   PlatformWeixin,
	"bd":          PlatformBaidu,
	"baidu":       PlatformBaidu,
	"mp-baidu":    PlatformBaidu,
}

// ParsePlatform resolves a platform code, product name or build target
// ("douyin", "mp-kuaishou", "wx", ...) to its canonical code.
func ParsePlatform(s string) (Platform, error) {
	p, ok := platformAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown platform %q", s)
	}
	return p, nil
}

// IsPlatform reports whether s names a known platform.
func IsPlatform(s string) bool {
	_, err := ParsePlatform(s)
	return err == nil
}

// Target returns the build target name used by the toolchains and by the
// package manifest sections, e.g. "mp-weixin".
func (p Platform) Target() string {
	switch p {
	case PlatformToutiao:
		return "mp-toutiao"
	case PlatformKuaishou:
		return "mp-kuaishou"
	case PlatformWeixin:
		return "mp-weixin"
	case PlatformBaidu:
		return "mp-baidu"
	}
	return ""
}

func (p Platform) String() string { return string(p) }
