package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser converts HTML email bodies to plain text for code extraction
type HTMLParser struct {
	spaceRegex     *regexp.Regexp
	invisibleRegex *regexp.Regexp
}

// NewHTMLParser creates a new HTML parser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{
		spaceRegex: regexp.MustCompile(`[^\S\n]+`),
		// Zero-width and other invisible characters that mailers use to split codes
		invisibleRegex: regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{2060}-\x{2064}\x{FE00}-\x{FE0F}]+`),
	}
}

// Parse converts HTML to plain text, one block element per line
func (p *HTMLParser) Parse(html string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, title, meta, link, noscript").Remove()
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr, td, table").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := p.invisibleRegex.ReplaceAllString(doc.Text(), "")
	text = p.spaceRegex.ReplaceAllString(text, " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}
