package printer

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/funnyzak/reqreplay/internal/config"
	"github.com/funnyzak/reqreplay/internal/logger"
	"github.com/funnyzak/reqreplay/pkg/i18n"
	"github.com/funnyzak/reqreplay/pkg/request"
)

// ColorScheme color scheme
type ColorScheme struct {
	MethodGET      *color.Color
	MethodPOST     *color.Color
	HeaderKey      *color.Color
	HeaderValue    *color.Color
	Separator      *color.Color
	Timestamp      *color.Color
	BodyContent    *color.Color
	BinaryNotice   *color.Color
	TruncateNotice *color.Color
	StatusOK       *color.Color
	StatusRedirect *color.Color
	StatusError    *color.Color
	Failure        *color.Color
	Current        *color.Color
	Muted          *color.Color
}

// NewColorScheme creates a new color scheme
func NewColorScheme() *ColorScheme {
	return &ColorScheme{
		MethodGET:      color.New(color.FgBlue, color.Bold),
		MethodPOST:     color.New(color.FgGreen, color.Bold),
		HeaderKey:      color.New(color.FgCyan),
		HeaderValue:    color.New(color.FgWhite),
		Separator:      color.New(color.FgYellow, color.Bold),
		Timestamp:      color.New(color.FgHiBlack),
		BodyContent:    color.New(color.FgWhite),
		BinaryNotice:   color.New(color.FgHiRed, color.Bold),
		TruncateNotice: color.New(color.FgHiYellow, color.Bold),
		StatusOK:       color.New(color.FgGreen, color.Bold),
		StatusRedirect: color.New(color.FgCyan, color.Bold),
		StatusError:    color.New(color.FgRed, color.Bold),
		Failure:        color.New(color.FgHiRed, color.Bold),
		Current:        color.New(color.FgHiGreen, color.Bold),
		Muted:          color.New(color.FgHiBlack),
	}
}

// ConsolePrinter console printer
type ConsolePrinter struct {
	colorScheme *ColorScheme
	logger      logger.Logger
	cfg         *config.OutputConfig
	formatter   *bodyFormatter
	intl        *i18n.Translator
	locale      string
	out         io.Writer
}

// NewConsolePrinter creates a new console printer writing to stdout
func NewConsolePrinter(log logger.Logger, cfg *config.OutputConfig, translator *i18n.Translator, locale string) *ConsolePrinter {
	if cfg == nil {
		cfg = &config.OutputConfig{}
	}
	resolved := strings.TrimSpace(locale)
	if resolved == "" && translator != nil {
		resolved = translator.DefaultLocale()
	}
	return &ConsolePrinter{
		colorScheme: NewColorScheme(),
		logger:      log,
		cfg:         cfg,
		formatter:   newBodyFormatter(cfg.Pretty, log, translator, resolved),
		intl:        translator,
		locale:      resolved,
		out:         os.Stdout,
	}
}

// SetOutput replaces the output target
func (p *ConsolePrinter) SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	p.out = w
}

func (p *ConsolePrinter) t(key string) string {
	if p.intl == nil {
		return key
	}
	return p.intl.Text(p.locale, key)
}

// getTerminalWidth gets the current terminal width with fallback
func (p *ConsolePrinter) getTerminalWidth() int {
	if testWidth := os.Getenv("REQREPLAY_TEST_WIDTH"); testWidth != "" {
		if width, err := strconv.Atoi(testWidth); err == nil {
			return clampWidth(width)
		}
	}

	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return clampWidth(width)
}

func clampWidth(width int) int {
	switch {
	case width < 40:
		return 40
	case width > 150:
		return 150
	default:
		return width
	}
}

// wrapText wraps text to fit within the specified width, preserving words
func (p *ConsolePrinter) wrapText(text string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{text}
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	currentLine := words[0]
	currentWidth := runewidth.StringWidth(currentLine)

	for _, word := range words[1:] {
		wordWidth := runewidth.StringWidth(word)
		if currentWidth+1+wordWidth > maxWidth {
			lines = append(lines, currentLine)
			currentLine = word
			currentWidth = wordWidth
			continue
		}
		currentLine += " " + word
		currentWidth += 1 + wordWidth
	}
	return append(lines, currentLine)
}

// PrintRecords prints the loaded records, marking the cursor and the
// records hidden by the content type filter
func (p *ConsolePrinter) PrintRecords(listing RecordListing) error {
	width := p.getTerminalWidth()
	separator := strings.Repeat("-", width)

	p.colorScheme.Separator.Fprintln(p.out, separator)
	p.colorScheme.Separator.Fprintf(p.out, "%s (%d)\n", p.t(keyRecordsTitle), len(listing.Records))
	if len(listing.Filter) > 0 {
		fmt.Fprintf(p.out, "%s: %s\n", p.t(keyRecordsFilter), strings.Join(listing.Filter, ", "))
	}
	p.colorScheme.Separator.Fprintln(p.out, separator)

	visible := 0
	indexWidth := len(strconv.Itoa(len(listing.Records) - 1))
	for i, rec := range listing.Records {
		matches := listing.Matches(i)
		if matches {
			visible++
		}

		marker := "  "
		if i == listing.Cursor {
			marker = "> "
		}
		prefix := fmt.Sprintf("%s%*d  ", marker, indexWidth, i)
		method := rec.Method()
		line := runewidth.Truncate(rec.URI, width-runewidth.StringWidth(prefix)-len(method)-1, "...")

		if !matches {
			p.colorScheme.Muted.Fprintf(p.out, "%s%s %s", prefix, method, line)
		} else {
			fmt.Fprint(p.out, prefix)
			p.getMethodColor(method).Fprintf(p.out, "%s ", method)
			fmt.Fprint(p.out, line)
		}
		if rec.ContentType != "" {
			p.colorScheme.Timestamp.Fprintf(p.out, "  [%s]", rec.ContentType)
		}
		if i == listing.Cursor {
			p.colorScheme.Current.Fprintf(p.out, "  (%s)", p.t(keyRecordsCurrent))
		}
		fmt.Fprintln(p.out)
	}

	if visible == 0 {
		p.colorScheme.TruncateNotice.Fprintln(p.out, p.t(keyRecordsEmpty))
	}
	return nil
}

// PrintResponse prints the sent request and the received response
func (p *ConsolePrinter) PrintResponse(resp *request.Response) error {
	if resp == nil || p.cfg.Silence {
		return nil
	}
	width := p.getTerminalWidth()

	p.printBanner(resp, width)
	p.printRequestLine(resp.Request)
	p.printSentHeaders(resp.Request, width)
	if resp.Request.HasBody {
		fmt.Fprintln(p.out)
		p.colorScheme.Timestamp.Fprintf(p.out, "%s:\n", p.t(keyBodySent))
		p.printBodyText(p.formatter.Format("application/x-www-form-urlencoded", []byte(resp.Request.Body)))
	}
	fmt.Fprintln(p.out)

	p.printStatusLine(resp)
	p.printReceivedHeaders(resp.Headers, width)
	if p.cfg.ShowBody {
		fmt.Fprintln(p.out)
		p.printResponseBody(resp)
	}
	fmt.Fprintln(p.out)
	return nil
}

// PrintFailure prints a replay the transport could not complete
func (p *ConsolePrinter) PrintFailure(index int, out request.Outbound, cause error) error {
	width := p.getTerminalWidth()
	separator := strings.Repeat("-", width)

	p.colorScheme.Separator.Fprintln(p.out, separator)
	p.colorScheme.Failure.Fprintln(p.out, p.intl.Textf(p.locale, keyReplayFailed, index))
	p.colorScheme.Separator.Fprintln(p.out, separator)
	p.printRequestLine(out)
	if cause != nil {
		for _, line := range p.wrapText(cause.Error(), width) {
			p.colorScheme.Failure.Fprintln(p.out, line)
		}
	}
	fmt.Fprintln(p.out)
	return nil
}

// PrintSummary prints the totals of a finished run
func (p *ConsolePrinter) PrintSummary(s Summary) error {
	width := p.getTerminalWidth()
	separator := strings.Repeat("=", width)

	p.colorScheme.Separator.Fprintln(p.out, separator)
	p.colorScheme.Separator.Fprintln(p.out, p.t(keySummaryTitle))
	fmt.Fprintf(p.out, "%s: %s\n", p.t(keySummarySession), s.SessionID)
	fmt.Fprintf(p.out, "%s: ", p.t(keySummaryExecuted))
	p.colorScheme.StatusOK.Fprintln(p.out, s.Executed)
	if s.Failed > 0 {
		fmt.Fprintf(p.out, "%s: ", p.t(keySummaryFailed))
		p.colorScheme.Failure.Fprintln(p.out, s.Failed)
	}
	fmt.Fprintf(p.out, "%s: %s\n", p.t(keySummaryElapsed), s.Elapsed.Round(time.Millisecond))
	if s.Shortfall() {
		p.colorScheme.TruncateNotice.Fprintln(p.out, p.intl.Textf(p.locale, keySummaryShortfall, s.Executed+s.Failed, s.Requested))
	}
	p.colorScheme.Separator.Fprintln(p.out, separator)
	return nil
}

func (p *ConsolePrinter) printBanner(resp *request.Response, width int) {
	separator := strings.Repeat("-", width)
	timestamp := resp.Timestamp.Format("2006-01-02T15:04:05-07:00")

	p.colorScheme.Separator.Fprintln(p.out, separator)
	p.colorScheme.Separator.Fprint(p.out, p.intl.Textf(p.locale, keyReplayTitle, resp.Index))
	p.colorScheme.Timestamp.Fprintf(p.out, "  %s\n", timestamp)
	p.printMetadataLine(resp)
	p.colorScheme.Separator.Fprintln(p.out, separator)
	fmt.Fprintln(p.out)
}

func (p *ConsolePrinter) printMetadataLine(resp *request.Response) {
	first := true
	addSep := func() {
		if first {
			first = false
			return
		}
		fmt.Fprint(p.out, " | ")
	}

	addSep()
	fmt.Fprintf(p.out, "%s: ", p.t(keyMetadataStatus))
	p.statusColor(resp.StatusCode).Fprint(p.out, resp.StatusCode)

	addSep()
	fmt.Fprintf(p.out, "%s: %s", p.t(keyMetadataDuration), resp.Duration.Round(time.Millisecond))

	if resp.Request.UserAgent != "" {
		addSep()
		fmt.Fprintf(p.out, "%s: ", p.t(keyMetadataUserAgent))
		p.colorScheme.BodyContent.Fprint(p.out, resp.Request.UserAgent)
	}

	if resp.ContentType != "" {
		addSep()
		fmt.Fprintf(p.out, "%s: ", p.t(keyMetadataContentType))
		p.colorScheme.HeaderValue.Fprint(p.out, resp.ContentType)
	}

	addSep()
	fmt.Fprintf(p.out, "%s: ", p.t(keyMetadataSize))
	p.colorScheme.BodyContent.Fprint(p.out, humanize.Bytes(uint64(resp.Size())))
	fmt.Fprintln(p.out)
}

func (p *ConsolePrinter) printRequestLine(out request.Outbound) {
	method := out.Method()
	p.getMethodColor(method).Fprintf(p.out, "%s ", method)
	fmt.Fprintln(p.out, out.URL)
}

func (p *ConsolePrinter) printSentHeaders(out request.Outbound, width int) {
	if len(out.Headers) == 0 {
		return
	}
	p.colorScheme.Timestamp.Fprintf(p.out, "%s:\n", p.t(keyHeadersSent))
	for _, line := range out.Headers {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if p.isSensitiveHeader(strings.ToLower(key)) {
			value = p.t(keyHeadersRedacted)
		}
		p.printHeaderLine(key, value, width)
	}
}

func (p *ConsolePrinter) printStatusLine(resp *request.Response) {
	proto := resp.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}
	status := resp.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	fmt.Fprintf(p.out, "%s ", proto)
	p.statusColor(resp.StatusCode).Fprintln(p.out, status)
}

func (p *ConsolePrinter) printReceivedHeaders(headers http.Header, width int) {
	if len(headers) == 0 {
		return
	}

	keys := make([]string, 0, len(headers))
	for key := range headers {
		if p.shouldSkipHeader(strings.ToLower(key)) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	p.colorScheme.Timestamp.Fprintf(p.out, "%s:\n", p.t(keyHeadersReceived))
	for _, key := range keys {
		displayValue := strings.Join(headers[key], ", ")
		if p.isSensitiveHeader(strings.ToLower(key)) {
			displayValue = p.t(keyHeadersRedacted)
		}
		p.printHeaderLine(key, displayValue, width)
	}
}

func (p *ConsolePrinter) printHeaderLine(key, value string, width int) {
	prefix := key + ": "
	available := width - runewidth.StringWidth(prefix)
	if available < 20 {
		available = 20
	}

	wrappedValues := p.wrapText(value, available)
	p.colorScheme.HeaderKey.Fprint(p.out, prefix)
	p.colorScheme.HeaderValue.Fprintln(p.out, wrappedValues[0])

	indent := strings.Repeat(" ", runewidth.StringWidth(prefix))
	for _, line := range wrappedValues[1:] {
		fmt.Fprint(p.out, indent)
		p.colorScheme.HeaderValue.Fprintln(p.out, line)
	}
}

func (p *ConsolePrinter) printResponseBody(resp *request.Response) {
	bodySize := humanize.Bytes(uint64(resp.Size()))

	if resp.Size() == 0 {
		p.colorScheme.BodyContent.Fprintf(p.out, "[%s - %s]\n", p.t(keyBodyEmpty), bodySize)
		return
	}

	if resp.IsBinary {
		p.colorScheme.BinaryNotice.Fprintf(p.out, "[%s: %s, %s]\n", p.t(keyBodyBinarySummary), resp.ContentType, bodySize)
		return
	}

	body := resp.Body
	truncated := false
	if limit := p.cfg.MaxBodyBytes; limit > 0 && len(body) > limit {
		body = truncateUTF8(body, limit)
		truncated = true
	}

	// truncated documents rarely parse, so only whole bodies are reformatted
	formatted := formattedBody{Text: string(body)}
	if !truncated {
		formatted = p.formatter.Format(resp.ContentType, body)
	}
	p.printBodyText(formatted)

	if truncated {
		hint := fmt.Sprintf(p.t(keyBodyTruncate), humanize.Bytes(uint64(len(body))), bodySize)
		p.colorScheme.TruncateNotice.Fprintf(p.out, "[%s]\n", hint)
	}
}

func (p *ConsolePrinter) printBodyText(body formattedBody) {
	for _, notice := range body.Notices {
		p.colorScheme.TruncateNotice.Fprintf(p.out, "[%s]\n", notice)
	}
	for _, line := range strings.Split(strings.TrimRight(body.Text, "\n"), "\n") {
		trimmed := strings.TrimRight(line, "\r")
		if trimmed == "" {
			fmt.Fprintln(p.out)
			continue
		}
		p.colorScheme.BodyContent.Fprintln(p.out, trimmed)
	}
}

// truncateUTF8 cuts b to at most limit bytes without splitting a rune
func truncateUTF8(b []byte, limit int) []byte {
	if limit >= len(b) {
		return b
	}
	cut := limit
	for cut > 0 && cut < len(b) && b[cut]&0xC0 == 0x80 {
		cut--
	}
	return b[:cut]
}

func (p *ConsolePrinter) statusColor(code int) *color.Color {
	switch {
	case code >= 200 && code < 300:
		return p.colorScheme.StatusOK
	case code >= 300 && code < 400:
		return p.colorScheme.StatusRedirect
	default:
		return p.colorScheme.StatusError
	}
}

// getMethodColor gets the corresponding color based on HTTP method
func (p *ConsolePrinter) getMethodColor(method string) *color.Color {
	switch strings.ToUpper(method) {
	case http.MethodGet:
		return p.colorScheme.MethodGET
	case http.MethodPost:
		return p.colorScheme.MethodPOST
	default:
		return color.New(color.FgWhite, color.Bold)
	}
}

// isSensitiveHeader checks if it's sensitive header information
func (p *ConsolePrinter) isSensitiveHeader(key string) bool {
	sensitiveHeaders := map[string]bool{
		"authorization":   true,
		"cookie":          true,
		"set-cookie":      true,
		"x-api-key":       true,
		"x-auth-token":    true,
		"x-csrf-token":    true,
		"x-session-token": true,
	}
	return sensitiveHeaders[key]
}

// shouldSkipHeader checks if header should be skipped from display
func (p *ConsolePrinter) shouldSkipHeader(key string) bool {
	skipHeaders := map[string]bool{
		"connection":        true,
		"keep-alive":        true,
		"proxy-connection":  true,
		"te":                true,
		"trailer":           true,
		"transfer-encoding": true,
		"upgrade":           true,
	}
	return skipHeaders[key]
}
