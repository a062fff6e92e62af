package transport

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
	"gopkg.in/yaml.v3"
)

// fileMu serializes access to cookie files across connections.
var fileMu sync.Mutex

// storedCookie is one persisted cookie.
type storedCookie struct {
	Name     string    `yaml:"name"`
	Value    string    `yaml:"value"`
	Domain   string    `yaml:"domain"`
	HostOnly bool      `yaml:"host_only,omitempty"`
	Path     string    `yaml:"path"`
	Expires  time.Time `yaml:"expires,omitempty"`
	Secure   bool      `yaml:"secure,omitempty"`
	HTTPOnly bool      `yaml:"http_only,omitempty"`
}

func (c storedCookie) key() string {
	return strings.ToLower(c.Domain) + "|" + c.Path + "|" + c.Name
}

func (c storedCookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// cookieFile is the YAML document backing jar mode.
type cookieFile struct {
	Cookies []storedCookie `yaml:"cookies"`
}

// loadCookieFile reads path. A missing file is an empty jar.
func loadCookieFile(p string) (*cookieFile, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cookieFile{}, nil
		}
		return nil, fmt.Errorf("read cookie jar: %w", err)
	}
	var cf cookieFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse cookie jar %s: %w", p, err)
	}
	return &cf, nil
}

// save writes the jar through a temp file so a crash never leaves it half
// written. Expired cookies are dropped.
func (cf *cookieFile) save(p string) error {
	now := time.Now()
	kept := cf.Cookies[:0]
	for _, c := range cf.Cookies {
		if !c.expired(now) {
			kept = append(kept, c)
		}
	}
	cf.Cookies = kept

	data, err := yaml.Marshal(cf)
	if err != nil {
		return fmt.Errorf("encode cookie jar: %w", err)
	}
	if dir := filepath.Dir(p); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cookie jar directory: %w", err)
		}
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write cookie jar: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("replace cookie jar: %w", err)
	}
	return nil
}

// jar builds an in-memory cookie jar seeded with the unexpired cookies.
func (cf *cookieFile) jar() (*cookiejar.Jar, error) {
	j, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, c := range cf.Cookies {
		if c.expired(now) {
			continue
		}
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		u := &url.URL{Scheme: scheme, Host: strings.TrimPrefix(c.Domain, "."), Path: c.Path}
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.HostOnly {
			hc.Domain = c.Domain
		}
		j.SetCookies(u, []*http.Cookie{hc})
	}
	return j, nil
}

// merge applies cookies a server set for u, replacing entries with the same
// domain, path and name. Deletions are kept as expired entries and dropped
// on save.
func (cf *cookieFile) merge(u *url.URL, cookies []*http.Cookie) {
	now := time.Now()
	index := make(map[string]int, len(cf.Cookies))
	for i, c := range cf.Cookies {
		index[c.key()] = i
	}

	for _, hc := range cookies {
		sc := storedCookie{
			Name:     hc.Name,
			Value:    hc.Value,
			Domain:   strings.ToLower(hc.Domain),
			Path:     hc.Path,
			Expires:  hc.Expires,
			Secure:   hc.Secure,
			HTTPOnly: hc.HttpOnly,
		}
		if sc.Domain == "" {
			sc.Domain = strings.ToLower(u.Hostname())
			sc.HostOnly = true
		} else {
			sc.Domain = strings.TrimPrefix(sc.Domain, ".")
		}
		if sc.Path == "" || !strings.HasPrefix(sc.Path, "/") {
			sc.Path = defaultCookiePath(u.Path)
		}
		switch {
		case hc.MaxAge < 0:
			sc.Expires = time.Unix(1, 0)
		case hc.MaxAge > 0:
			sc.Expires = now.Add(time.Duration(hc.MaxAge) * time.Second)
		}

		if i, ok := index[sc.key()]; ok {
			cf.Cookies[i] = sc
			continue
		}
		index[sc.key()] = len(cf.Cookies)
		cf.Cookies = append(cf.Cookies, sc)
	}
}

// defaultCookiePath is the directory of the request path (RFC 6265 5.1.4).
func defaultCookiePath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	dir := path.Dir(p)
	if strings.HasSuffix(p, "/") {
		dir = strings.TrimSuffix(p, "/")
	}
	if dir == "" || dir == "." {
		return "/"
	}
	return dir
}

// recordingJar delegates to a cookiejar and remembers every Set-Cookie it
// saw, including those on redirect hops.
type recordingJar struct {
	*cookiejar.Jar
	seen []setCall
}

type setCall struct {
	u       *url.URL
	cookies []*http.Cookie
}

func (r *recordingJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	r.Jar.SetCookies(u, cookies)
	r.seen = append(r.seen, setCall{u: u, cookies: cookies})
}
