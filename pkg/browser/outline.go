package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// idAttribute carries the registry identifier of an element in an outline.
const idAttribute = "data-pw-id"

// Outline is a condensed rendering of the current page in which every
// addressable element is tagged with its identifier.
type Outline struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	HTML      string   `json:"html"`
	Truncated bool     `json:"truncated"`
	Warnings  Warnings `json:"warnings,omitempty"`
}

// BuildOutline parses rawHTML, tags the top-level elements the registry would
// address, and renders what remains after dropping scripts, styles, frames and
// comments. Output stops after roughly maxLength characters of content.
func (r *Registry) BuildOutline(rawHTML string, maxLength int) (*Outline, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	out := &Outline{Title: strings.TrimSpace(doc.Find("title").First().Text())}

	categories := []struct {
		selector string
		category Category
	}{
		{r.selectors.ButtonSelector, CategoryButton},
		{r.selectors.FieldSelector, CategoryField},
		{r.selectors.TableSelector, CategoryTable},
		{r.selectors.HeadingSelector, r.heading},
	}
	for _, c := range categories {
		if err := tag(doc, c.selector, c.category); err != nil {
			// playwright-only selector engines (xpath=, text=) have no CSS equivalent
			out.Warnings.Add("tag "+string(c.category)+" elements", err)
		}
	}

	var o outliner
	o.maxLength = maxLength
	for _, n := range doc.Nodes {
		if o.node(n, 0) {
			out.Truncated = true
			break
		}
	}
	out.HTML = strings.TrimSpace(o.b.String())
	return out, nil
}

func tag(doc *goquery.Document, selector string, c Category) error {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return fmt.Errorf("unsupported selector %q: %w", selector, err)
	}

	doc.FindMatcher(m).Each(func(i int, s *goquery.Selection) {
		if _, exists := s.Attr(idAttribute); !exists {
			s.SetAttr(idAttribute, FormatID(c, i+1))
		}
	})
	return nil
}

type outliner struct {
	b         strings.Builder
	length    int
	maxLength int
}

// node writes n and its subtree and reports whether output was truncated.
func (o *outliner) node(n *html.Node, depth int) bool {
	if o.length >= o.maxLength {
		return true
	}

	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return false
	case html.TextNode:
		return o.text(n.Data)
	case html.ElementNode:
		name := strings.ToLower(n.Data)
		if droppedElements[name] {
			return false
		}
		return o.element(n, name, depth)
	}
	return o.children(n, depth)
}

func (o *outliner) text(data string) bool {
	text := strings.Join(strings.Fields(data), " ")
	if text == "" {
		return false
	}
	if o.length+len(text) > o.maxLength {
		text = truncateUTF8(text, o.maxLength-o.length) + "..."
		o.b.WriteString(text)
		o.length = o.maxLength
		return true
	}
	o.b.WriteString(text)
	o.length += len(text)
	return false
}

func (o *outliner) element(n *html.Node, name string, depth int) bool {
	structural := containerElements[name]
	if structural {
		o.b.WriteString("\n")
		o.b.WriteString(strings.Repeat("  ", depth))
	}

	o.b.WriteString("<" + name)
	for _, a := range n.Attr {
		if keepAttribute(name, strings.ToLower(a.Key)) {
			fmt.Fprintf(&o.b, ` %s="%s"`, a.Key, html.EscapeString(a.Val))
		}
	}
	o.b.WriteString(">")
	o.length += len(name) + 2

	truncated := o.children(n, depth+1)

	if !voidElements[name] {
		if structural {
			o.b.WriteString("\n")
			o.b.WriteString(strings.Repeat("  ", depth))
		}
		o.b.WriteString("</" + name + ">")
		o.length += len(name) + 3
	}
	return truncated
}

func (o *outliner) children(n *html.Node, depth int) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if o.node(c, depth) {
			return true
		}
	}
	return false
}

func truncateUTF8(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if n >= len(s) {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

var droppedElements = map[string]bool{
	"head":     true,
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"frame":    true,
	"embed":    true,
	"object":   true,
	"svg":      true,
	"canvas":   true,
	"template": true,
}

var containerElements = map[string]bool{
	"div": true, "p": true, "section": true, "article": true, "header": true,
	"footer": true, "nav": true, "main": true, "aside": true, "form": true,
	"fieldset": true, "ul": true, "ol": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "thead": true, "tbody": true, "tr": true,
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// keepAttribute limits attributes to those that help pick an element.
func keepAttribute(tagName, attr string) bool {
	switch attr {
	case idAttribute, "id", "name", "role", "aria-label", "title":
		return true
	}
	switch tagName {
	case "a":
		return attr == "href"
	case "img":
		return attr == "alt"
	case "input", "textarea", "select":
		return attr == "type" || attr == "placeholder" || attr == "value"
	case "button":
		return attr == "type" || attr == "value"
	}
	return false
}
