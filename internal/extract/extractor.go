// Package extract turns raw HTML into bounded plain text for curation.
package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// DefaultMaxChars is the character budget handed to the curator.
const DefaultMaxChars = 8000

// Mode selects how markup is stripped.
type Mode string

// Supported extraction modes.
const (
	ModeMarkup      Mode = "markup"
	ModeRegex       Mode = "regex"
	ModeReadability Mode = "readability"
)

// ParseMode converts a config value into a Mode, defaulting to ModeMarkup.
func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeMarkup:
		return ModeMarkup, true
	case ModeRegex:
		return ModeRegex, true
	case ModeReadability:
		return ModeReadability, true
	default:
		return ModeMarkup, false
	}
}

// Config controls the Extractor.
type Config struct {
	Mode     Mode
	MaxChars int
}

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b.*?</script\s*>`)
	styleBlock  = regexp.MustCompile(`(?is)<style\b.*?</style\s*>`)
	anyTag      = regexp.MustCompile(`<[^>]+>`)
	whitespace  = regexp.MustCompile(`\s+`)

	skippedElements = map[string]struct{}{
		"script":   {},
		"style":    {},
		"noscript": {},
		"template": {},
	}

	readabilityBase = &url.URL{Scheme: "http", Host: "localhost", Path: "/"}

	// Decoded text is re-escaped so that extracting the output again parses
	// back to the same characters instead of new markup or entities.
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;")
)

// Extractor implements crawler.Extractor.
type Extractor struct {
	cfg Config
}

// New builds an Extractor, filling in defaults.
func New(cfg Config) *Extractor {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeMarkup
	}
	return &Extractor{cfg: cfg}
}

// Extract strips markup from raw, collapses whitespace and truncates the
// result to the configured budget. It never fails.
func (e *Extractor) Extract(raw string) string {
	switch e.cfg.Mode {
	case ModeRegex:
		return Normalize(stripRegex(raw), e.cfg.MaxChars)
	case ModeReadability:
		return trimPartialEntity(Normalize(stripReadability(raw), e.cfg.MaxChars))
	default:
		return trimPartialEntity(Normalize(stripMarkup(raw), e.cfg.MaxChars))
	}
}

// Normalize collapses whitespace runs, trims, and truncates to maxChars runes.
func Normalize(text string, maxChars int) string {
	text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:maxChars]))
	}
	return text
}

// trimPartialEntity drops an escape sequence cut short by truncation. Every
// '&' in escaped output starts an entity, so one without ';' is incomplete.
func trimPartialEntity(text string) string {
	idx := strings.LastIndexByte(text, '&')
	if idx < 0 || strings.IndexByte(text[idx:], ';') >= 0 {
		return text
	}
	return strings.TrimSpace(text[:idx])
}

func stripRegex(raw string) string {
	out := scriptBlock.ReplaceAllString(raw, "")
	out = styleBlock.ReplaceAllString(out, "")
	return anyTag.ReplaceAllString(out, " ")
}

func stripMarkup(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return stripRegex(raw)
	}
	var b strings.Builder
	for _, node := range doc.Nodes {
		collectText(node, &b)
	}
	return b.String()
}

func collectText(node *html.Node, b *strings.Builder) {
	switch node.Type {
	case html.TextNode:
		b.WriteString(textEscaper.Replace(node.Data))
		b.WriteByte(' ')
		return
	case html.CommentNode, html.DoctypeNode:
		return
	case html.ElementNode:
		if _, skip := skippedElements[strings.ToLower(node.Data)]; skip {
			return
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, b)
	}
}

func stripReadability(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(raw), readabilityBase)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		return stripMarkup(raw)
	}
	return textEscaper.Replace(article.TextContent)
}
