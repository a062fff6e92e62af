package printer

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"net/url"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	nethtml "golang.org/x/net/html"

	"github.com/funnyzak/reqreplay/internal/logger"
	"github.com/funnyzak/reqreplay/pkg/i18n"
)

// JSON bodies above this size are printed as received.
const maxIndentBytes = 1 << 20

type bodyKind int

const (
	bodyPlain bodyKind = iota
	bodyJSON
	bodyForm
	bodyXML
	bodyHTML
)

type formattedBody struct {
	Text    string
	Notices []string
}

// bodyFormatter re-indents response and request bodies for the console.
type bodyFormatter struct {
	pretty bool
	logger logger.Logger
	intl   *i18n.Translator
	locale string
}

func newBodyFormatter(pretty bool, log logger.Logger, translator *i18n.Translator, locale string) *bodyFormatter {
	if log == nil {
		log = logger.Nop()
	}
	locale = strings.TrimSpace(locale)
	if locale == "" && translator != nil {
		locale = translator.DefaultLocale()
	}
	return &bodyFormatter{pretty: pretty, logger: log, intl: translator, locale: locale}
}

func (f *bodyFormatter) t(key string) string {
	if f.intl == nil {
		return key
	}
	return f.intl.Text(f.locale, key)
}

// Format renders body according to its content type. Unknown types and
// malformed documents come back unchanged.
func (f *bodyFormatter) Format(contentType string, body []byte) formattedBody {
	if f == nil || len(body) == 0 {
		return formattedBody{}
	}
	if !f.pretty {
		return formattedBody{Text: string(body)}
	}

	var (
		out formattedBody
		err error
	)
	switch classifyBody(contentType, body) {
	case bodyJSON:
		out, err = f.indentJSON(body)
	case bodyForm:
		out, err = f.formTable(body)
	case bodyXML:
		out.Text, err = prettyXML(stripControlBytes(body))
	case bodyHTML:
		out.Text, err = prettyHTML(stripControlBytes(body))
	default:
		return formattedBody{Text: string(body)}
	}
	if err != nil {
		f.logger.Debug("Body left unformatted", "content_type", contentType, "error", err)
		return formattedBody{Text: string(stripControlBytes(body))}
	}
	return out
}

// classifyBody picks a renderer from the media type, falling back to
// sniffing JSON and HTML documents served with a generic type.
func classifyBody(contentType string, body []byte) bodyKind {
	mediaType := normalizeMediaType(contentType)
	trimmed := bytes.TrimSpace(body)

	switch {
	case strings.Contains(mediaType, "json") && json.Valid(trimmed):
		return bodyJSON
	case mediaType == "application/x-www-form-urlencoded":
		return bodyForm
	case strings.Contains(mediaType, "xml") && !strings.Contains(mediaType, "xhtml"):
		return bodyXML
	case strings.Contains(mediaType, "html"):
		return bodyHTML
	case isJSONDocument(trimmed):
		return bodyJSON
	case isHTMLDocument(trimmed):
		return bodyHTML
	}
	return bodyPlain
}

func (f *bodyFormatter) indentJSON(body []byte) (formattedBody, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > maxIndentBytes {
		return formattedBody{
			Text:    string(body),
			Notices: []string{fmt.Sprintf(f.t(keyJSONIndentSkipped), humanize.Bytes(maxIndentBytes))},
		}, nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, trimmed, "", "  "); err != nil {
		return formattedBody{}, err
	}
	return formattedBody{Text: buf.String()}, nil
}

// formTable lays form fields out as a two column table, sorted by name.
func (f *bodyFormatter) formTable(body []byte) (formattedBody, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return formattedBody{}, err
	}
	if len(values) == 0 {
		return formattedBody{Text: string(body)}, nil
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	nameHeader, valueHeader := f.t(keyFormKeyHeader), f.t(keyFormValueHeader)
	width := runewidth.StringWidth(nameHeader)
	for _, name := range names {
		width = max(width, runewidth.StringWidth(name))
	}

	var b strings.Builder
	row := func(name, value string) {
		b.WriteString(runewidth.FillRight(name, width))
		b.WriteString(" │ ")
		b.WriteString(value)
		b.WriteByte('\n')
	}
	b.WriteString(f.t(keyFormTitle))
	b.WriteByte('\n')
	row(nameHeader, valueHeader)
	b.WriteString(strings.Repeat("─", width+1) + "┼" + strings.Repeat("─", 40) + "\n")
	for _, name := range names {
		row(name, strings.Join(values[name], ", "))
	}
	return formattedBody{Text: b.String()}, nil
}

func normalizeMediaType(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return strings.ToLower(mediaType)
	}
	return strings.ToLower(contentType)
}

func isJSONDocument(trimmed []byte) bool {
	if len(trimmed) < 2 {
		return false
	}
	open, closing := trimmed[0], trimmed[len(trimmed)-1]
	if !(open == '{' && closing == '}') && !(open == '[' && closing == ']') {
		return false
	}
	return json.Valid(trimmed)
}

func isHTMLDocument(trimmed []byte) bool {
	lower := bytes.ToLower(trimmed[:min(len(trimmed), 9)])
	return bytes.HasPrefix(lower, []byte("<html")) || bytes.HasPrefix(lower, []byte("<!doctype"))
}

// stripControlBytes drops C0 control bytes other than tab and line breaks.
func stripControlBytes(b []byte) []byte {
	return bytes.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, b)
}

func prettyXML(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		// the encoder supplies its own indentation
		if text, ok := tok.(xml.CharData); ok && len(bytes.TrimSpace(text)) == 0 {
			continue
		}
		if err := enc.EncodeToken(tok); err != nil {
			return "", err
		}
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func prettyHTML(data []byte) (string, error) {
	doc, err := nethtml.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	w := &htmlWriter{}
	w.node(doc, 0)
	return w.String(), nil
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "keygen": true, "link": true,
	"meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

// htmlWriter prints one tag or text run per line, two spaces per level.
type htmlWriter struct {
	strings.Builder
}

func (w *htmlWriter) line(depth int, s string) {
	w.WriteString(strings.Repeat("  ", depth))
	w.WriteString(s)
	w.WriteByte('\n')
}

func (w *htmlWriter) node(n *nethtml.Node, depth int) {
	switch n.Type {
	case nethtml.DocumentNode:
		w.children(n, depth)
	case nethtml.DoctypeNode:
		w.line(depth, "<!DOCTYPE "+n.Data+">")
	case nethtml.CommentNode:
		w.line(depth, "<!--"+strings.TrimSpace(n.Data)+"-->")
	case nethtml.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			w.line(depth, text)
		}
	case nethtml.ElementNode:
		var open strings.Builder
		open.WriteString("<" + n.Data)
		for _, attr := range n.Attr {
			fmt.Fprintf(&open, ` %s="%s"`, attr.Key, html.EscapeString(attr.Val))
		}
		if voidElements[strings.ToLower(n.Data)] {
			w.line(depth, open.String()+" />")
			return
		}
		w.line(depth, open.String()+">")
		w.children(n, depth+1)
		w.line(depth, "</"+n.Data+">")
	}
}

func (w *htmlWriter) children(n *nethtml.Node, depth int) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		w.node(child, depth)
	}
}
