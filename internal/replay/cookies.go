package replay

import "strings"

// CookieMode selects how cookie state carries across replays.
type CookieMode int

const (
	// CookieModeHeader forwards the captured Cookie header verbatim.
	CookieModeHeader CookieMode = iota
	// CookieModeJar delegates cookies to a jar file owned by the transport.
	CookieModeJar
)

func (m CookieMode) String() string {
	if m == CookieModeJar {
		return "jar"
	}
	return "header"
}

// cookieModeFor derives the mode from a jar path; no path means header mode.
func cookieModeFor(jarPath string) CookieMode {
	if strings.TrimSpace(jarPath) == "" {
		return CookieModeHeader
	}
	return CookieModeJar
}
