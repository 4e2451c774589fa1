package service

import (
	"strings"

	"github.com/mssola/useragent"
)

// summarizeUserAgent condenses a raw User-Agent into "Browser version / OS [mobile|bot]"
// for the waiver acceptance record.
func summarizeUserAgent(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return strings.TrimSpace(name + " bot")
	}

	name, version := ua.Browser()
	parts := []string{strings.TrimSpace(name + " " + version)}
	if os := ua.OS(); os != "" {
		parts = append(parts, os)
	}
	summary := strings.Join(parts, " / ")
	if ua.Mobile() {
		summary += " mobile"
	}
	return summary
}
