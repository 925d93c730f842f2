// Copyright 2024-2026 Aiku AI

// Package mattermostfmt renders the markdown dialect used on the relay
// (Mattermost flavoured) as Matrix HTML.
package mattermostfmt

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

var (
	boldRe      = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe    = regexp.MustCompile(`(^|[^\w*])_(.+?)_($|[^\w*])`)
	strikeRe    = regexp.MustCompile(`~~(.+?)~~`)
	codeRe      = regexp.MustCompile("`([^`]+)`")
	codeBlockRe = regexp.MustCompile("(?s)```(\\w+)?\\n?(.*?)```")
	linkRe      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	ulRe      = regexp.MustCompile(`^[-*]\s+(.+)$`)
	olRe      = regexp.MustCompile(`^\d+\.\s+(.+)$`)
	quoteRe   = regexp.MustCompile(`^>\s+(.+)$`)
)

var markers = []*regexp.Regexp{boldRe, italicRe, strikeRe, codeRe, codeBlockRe, linkRe}

const (
	placeholder     = "\x00CODEBLOCK"
	spanPlaceholder = "\x00CODESPAN"
)

// HasFormatting reports whether text contains any markdown this package
// renders.
func HasFormatting(text string) bool {
	for _, re := range markers {
		if re.MatchString(text) {
			return true
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if headingRe.MatchString(line) || ulRe.MatchString(line) || olRe.MatchString(line) || quoteRe.MatchString(line) {
			return true
		}
	}
	return false
}

// ToHTML renders markdown text as Matrix HTML. Text without markdown is only
// escaped.
func ToHTML(text string) string {
	text, blocks := extractCodeBlocks(text)
	out := renderBlocks(strings.Split(text, "\n"))
	out = renderInline(out)

	out = strings.ReplaceAll(out, "\n\n", "</p><p>")
	if strings.Contains(out, "</p><p>") {
		out = "<p>" + out + "</p>"
	}
	out = strings.ReplaceAll(out, "\n", "<br/>")

	// Restored last so code keeps its own line breaks.
	for i, block := range blocks {
		out = strings.Replace(out, placeholder+strconv.Itoa(i)+"\x00", block, 1)
	}
	return out
}

// Content builds message event content for text. HTML is attached only when
// the text carries formatting.
func Content(msgType event.MessageType, text string) *event.MessageEventContent {
	content := &event.MessageEventContent{MsgType: msgType, Body: text}
	if HasFormatting(text) {
		content.Format = event.FormatHTML
		content.FormattedBody = ToHTML(text)
	}
	return content
}

// extractCodeBlocks swaps fenced blocks for placeholders so later passes
// leave their contents alone.
func extractCodeBlocks(text string) (string, []string) {
	var blocks []string
	text = codeBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := codeBlockRe.FindStringSubmatch(match)
		open := "<pre><code>"
		if parts[1] != "" {
			open = `<pre><code class="language-` + html.EscapeString(parts[1]) + `">`
		}
		blocks = append(blocks, open+html.EscapeString(parts[2])+"</code></pre>")
		return placeholder + strconv.Itoa(len(blocks)-1) + "\x00"
	})
	return text, blocks
}

func renderBlocks(lines []string) string {
	var (
		out      []string
		listTag  string
		listBody strings.Builder
	)
	flush := func() {
		if listTag == "" {
			return
		}
		out = append(out, "<"+listTag+">"+listBody.String()+"</"+listTag+">")
		listTag = ""
		listBody.Reset()
	}
	item := func(tag, body string) {
		if listTag != tag {
			flush()
			listTag = tag
		}
		listBody.WriteString("<li>" + html.EscapeString(body) + "</li>")
	}

	for _, line := range lines {
		if m := quoteRe.FindStringSubmatch(line); m != nil {
			flush()
			out = append(out, "<blockquote>"+html.EscapeString(m[1])+"</blockquote>")
		} else if m := headingRe.FindStringSubmatch(line); m != nil {
			flush()
			lvl := strconv.Itoa(len(m[1]))
			out = append(out, "<h"+lvl+">"+html.EscapeString(m[2])+"</h"+lvl+">")
		} else if m := ulRe.FindStringSubmatch(line); m != nil {
			item("ul", m[1])
		} else if m := olRe.FindStringSubmatch(line); m != nil {
			item("ol", m[1])
		} else {
			flush()
			out = append(out, html.EscapeString(line))
		}
	}
	flush()
	return strings.Join(out, "\n")
}

func renderInline(text string) string {
	// Code spans are held out like fenced blocks so emphasis inside stays literal.
	var spans []string
	text = codeRe.ReplaceAllStringFunc(text, func(match string) string {
		spans = append(spans, "<code>"+codeRe.FindStringSubmatch(match)[1]+"</code>")
		return spanPlaceholder + strconv.Itoa(len(spans)-1) + "\x00"
	})
	text = boldRe.ReplaceAllString(text, "<strong>$1</strong>")
	text = italicRe.ReplaceAllString(text, "$1<em>$2</em>$3")
	text = strikeRe.ReplaceAllString(text, "<del>$1</del>")
	text = linkRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := linkRe.FindStringSubmatch(match)
		label, href := parts[1], parts[2]
		if !safeScheme(href) {
			return label
		}
		return `<a href="` + href + `">` + label + `</a>`
	})
	for i, span := range spans {
		text = strings.Replace(text, spanPlaceholder+strconv.Itoa(i)+"\x00", span, 1)
	}
	return text
}

func safeScheme(href string) bool {
	lower := strings.ToLower(strings.TrimSpace(href))
	for _, scheme := range []string{"http://", "https://", "mailto:"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}
