package app

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// invisibleRunes are dropped before segmentation.
var invisibleRunes = strings.NewReplacer(
	"\x00", "",
	"\ufeff", "",
	"\u200b", "",
	"\u200c", "",
	"\u200d", "",
	"\u2060", "",
	"\r\n", "\n",
	"\r", "\n",
)

func normalizeText(text string) string {
	return invisibleRunes.Replace(strings.ToValidUTF8(text, ""))
}

// segmentParagraphs splits text on blank lines. Blocks longer than maxRunes
// are cut after sentence-ending punctuation; a single sentence longer than
// maxRunes is kept whole.
func segmentParagraphs(text string, maxRunes int) []string {
	var (
		out   []string
		block []string
	)
	flush := func() {
		if len(block) == 0 {
			return
		}
		out = append(out, splitLongBlock(strings.Join(block, "\n"), maxRunes)...)
		block = block[:0]
	}
	for _, line := range strings.Split(normalizeText(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()
	return out
}

func splitLongBlock(block string, maxRunes int) []string {
	if maxRunes <= 0 || utf8.RuneCountInString(block) <= maxRunes {
		return []string{block}
	}
	var (
		out     []string
		current strings.Builder
		count   int
	)
	for _, sentence := range splitSentences(block) {
		n := utf8.RuneCountInString(sentence)
		if count > 0 && count+n > maxRunes {
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
			count = 0
		}
		current.WriteString(sentence)
		count += n
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// splitSentences cuts after 。！？!?.；; and keeps closing quotes and
// brackets with the sentence they end.
func splitSentences(block string) []string {
	var (
		out   []string
		start int
		ended bool
	)
	for i, r := range block {
		if ended && !isClosingMark(r) {
			out = append(out, block[start:i])
			start = i
			ended = false
		}
		if isSentenceEnd(r) {
			ended = true
		}
	}
	if start < len(block) {
		out = append(out, block[start:])
	}
	return out
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '。', '！', '？', '!', '?', '.', '；', ';':
		return true
	}
	return false
}

func isClosingMark(r rune) bool {
	switch r {
	case '”', '’', '」', '』', '）', ')', '"', '\'', '》':
		return true
	}
	return isSentenceEnd(r)
}

// blockElements end a paragraph when they close.
var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "section": true, "article": true,
	"blockquote": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "tr": true, "pre": true,
}

// extractHTMLText renders the visible text of an HTML document with a blank
// line after every block element, so it can go through segmentParagraphs.
func extractHTMLText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(collapseSpace(n.Data))
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "head", "template":
				return
			case "br":
				buf.WriteString("\n")
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			buf.WriteString("\n\n")
		}
	}
	walk(root)
	return buf.String(), nil
}

// collapseSpace folds HTML whitespace runs into single spaces. Ideographic
// spaces are content and survive.
func collapseSpace(s string) string {
	isSpace := func(r rune) bool { return unicode.IsSpace(r) && r != '\u3000' }
	fields := strings.FieldsFunc(s, isSpace)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}
	out := strings.Join(fields, " ")
	if r, _ := utf8.DecodeRuneInString(s); isSpace(r) {
		out = " " + out
	}
	if r, _ := utf8.DecodeLastRuneInString(s); isSpace(r) {
		out += " "
	}
	return out
}
