package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const minBoxWidth = 50

func printRunBanner(w io.Writer, a *app) {
	lines := bannerHeader(a)
	lines = append(lines, "", "(Press Ctrl+C to stop)")
	printBox(w, lines)

	a.logger.Info("ReqReplay starting",
		"version", version,
		"capture", a.cfg.Replay.CaptureFile,
		"records", len(a.records),
		"log_level", a.cfg.Log.Level,
	)
}

func printServeBanner(w io.Writer, a *app, addr string) {
	lines := bannerHeader(a)

	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("🚀 Control API:     http://%s%s", addr, a.cfg.Web.AdminPath))
	lines = append(lines, fmt.Sprintf("   └─ Events:       ws://%s%s/ws", addr, strings.TrimRight(a.cfg.Web.AdminPath, "/")))
	exportStatus := "Disabled"
	if a.cfg.Web.Export.Enable {
		exportStatus = fmt.Sprintf("Enabled (%s)", strings.Join(a.cfg.Web.Export.Formats, ", "))
	}
	lines = append(lines, fmt.Sprintf("   └─ Export:       %s", exportStatus))

	lines = append(lines, "", "(Press Ctrl+C to stop)")
	printBox(w, lines)

	a.logger.Info("ReqReplay control API starting",
		"version", version,
		"addr", addr,
		"admin_path", a.cfg.Web.AdminPath,
		"capture", a.cfg.Replay.CaptureFile,
		"records", len(a.records),
		"web_export", a.cfg.Web.Export.Enable,
	)
}

// bannerHeader returns the title, subtitle and the lines shared by every
// command banner. The first two lines are centered by printBox.
func bannerHeader(a *app) []string {
	cfg := a.cfg
	lines := []string{
		fmt.Sprintf("ReqReplay v%s", version),
		"TamperData & HAR Request Replayer",
		"",
	}

	lines = append(lines, fmt.Sprintf("📂 Capture:         %s (%s)", cfg.Replay.CaptureFile, cfg.Replay.Format))
	lines = append(lines, fmt.Sprintf("📄 Records:         %d", len(a.records)))
	if filter := a.session.MimeFilter(); len(filter) > 0 {
		lines = append(lines, fmt.Sprintf("   └─ MIME Filter:  %s", strings.Join(filter, ", ")))
	}
	if a.session.CookieJarPath() != "" {
		lines = append(lines, fmt.Sprintf("🍪 Cookies:         jar (%s)", a.session.CookieJarPath()))
	} else {
		lines = append(lines, "🍪 Cookies:         header")
	}
	nav := a.session.Navigation()
	lines = append(lines, fmt.Sprintf("🔁 Navigation:      reuse=%t reset=%t", nav.ReuseConnection, nav.ResetSettings))
	redirects := "Disabled"
	if cfg.Transport.FollowRedirects {
		redirects = fmt.Sprintf("Enabled (max %d)", cfg.Transport.MaxRedirects)
	}
	lines = append(lines, fmt.Sprintf("⏱  Timeout:         %ds, redirects: %s", cfg.Transport.Timeout, redirects))
	lines = append(lines, fmt.Sprintf("📊 Log Level:       %s", cfg.Log.Level))

	lines = append(lines, "")
	if cfg.Log.FileLogging.Enable {
		lines = append(lines, "💾 File Logging:    Enabled")
		compress := "Disabled"
		if cfg.Log.FileLogging.Compress {
			compress = "Enabled"
		}
		lines = append(lines, fmt.Sprintf("   └─ %s (%dMB, %d backups, %d days, compress: %s)",
			cfg.Log.FileLogging.Path,
			cfg.Log.FileLogging.MaxSizeMB,
			cfg.Log.FileLogging.MaxBackups,
			cfg.Log.FileLogging.MaxAgeDays,
			compress))
	} else {
		lines = append(lines, "💾 File Logging:    Disabled")
	}
	if a.store != nil {
		lines = append(lines, fmt.Sprintf("🗄  Storage:         %s (%s)", cfg.Storage.Driver, cfg.Storage.Path))
	} else {
		lines = append(lines, "🗄  Storage:         Disabled")
	}
	return lines
}

// printBox draws lines inside a box. Lines 0 and 1 are the centered title
// and subtitle, line 2 is replaced by a separator.
func printBox(w io.Writer, lines []string) {
	maxLength := 0
	for _, line := range lines {
		if width := runewidth.StringWidth(line); width > maxLength {
			maxLength = width
		}
	}
	boxWidth := maxLength + 4
	if boxWidth < minBoxWidth {
		boxWidth = minBoxWidth
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
	for i, line := range lines {
		switch {
		case i < 2:
			printBoxContent(w, line, boxWidth, true)
		case i == 2:
			fmt.Fprintf(w, "├%s┤\n", strings.Repeat("─", boxWidth-2))
		default:
			printBoxContent(w, line, boxWidth, false)
		}
	}
	fmt.Fprintf(w, "└%s┘\n", strings.Repeat("─", boxWidth-2))
	fmt.Fprintln(w)
}

func printBoxContent(w io.Writer, content string, boxWidth int, center bool) {
	padding := boxWidth - 2 - runewidth.StringWidth(content)
	if padding < 0 {
		padding = 0
	}

	var leftPad, rightPad string
	if center {
		leftPad = strings.Repeat(" ", padding/2)
		rightPad = strings.Repeat(" ", padding-padding/2)
	} else {
		leftPad = "  "
		rightPad = strings.Repeat(" ", max(padding-2, 0))
	}
	fmt.Fprintf(w, "│%s%s%s│\n", leftPad, content, rightPad)
}
