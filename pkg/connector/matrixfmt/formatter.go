// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package matrixfmt flattens Matrix HTML bodies into the markdown text that
// travels through the relay.
package matrixfmt

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

// A rule rewrites with either a regexp template or a function.
type rule struct {
	re   *regexp.Regexp
	tmpl string
	repl func(m []string) string
}

func replace(re *regexp.Regexp, tmpl string) rule {
	return rule{re: re, tmpl: tmpl}
}

func (r rule) apply(text string) string {
	if r.repl == nil {
		// Expansion fills each group once, so captured "$1" stays literal.
		return r.re.ReplaceAllString(text, r.tmpl)
	}
	return r.re.ReplaceAllStringFunc(text, func(match string) string {
		return r.repl(r.re.FindStringSubmatch(match))
	})
}

var (
	liRe  = regexp.MustCompile(`(?s)<li>(.*?)</li>`)
	tagRe = regexp.MustCompile(`<[^>]+>`)
	// mx-reply carries the quoted parent event and is never relayed.
	replyRe = regexp.MustCompile(`(?s)<mx-reply>.*?</mx-reply>`)
)

// Applied in order. Code comes first so inline rules do not rewrite it.
var rules = []rule{
	replace(regexp.MustCompile(`(?s)<pre><code[^>]*>(.*?)</code></pre>`), "```\n${1}\n```"),
	replace(regexp.MustCompile(`(?s)<code>(.*?)</code>`), "`${1}`"),
	replace(regexp.MustCompile(`(?s)<(?:strong|b)>(.*?)</(?:strong|b)>`), "**${1}**"),
	replace(regexp.MustCompile(`(?s)<(?:em|i)>(.*?)</(?:em|i)>`), "_${1}_"),
	replace(regexp.MustCompile(`(?s)<(?:del|s)>(.*?)</(?:del|s)>`), "~~${1}~~"),
	replace(regexp.MustCompile(`(?s)<a href="([^"]+)"[^>]*>(.*?)</a>`), "[${2}](${1})"),
	{
		re: regexp.MustCompile(`(?s)<h([1-6])>(.*?)</h[1-6]>`),
		repl: func(m []string) string {
			level, _ := strconv.Atoi(m[1])
			return strings.Repeat("#", level) + " " + m[2]
		},
	},
	{
		re: regexp.MustCompile(`(?s)<blockquote>(.*?)</blockquote>`),
		repl: func(m []string) string {
			lines := strings.Split(strings.TrimSpace(m[1]), "\n")
			for i, line := range lines {
				lines[i] = "> " + strings.TrimSpace(line)
			}
			return strings.Join(lines, "\n")
		},
	},
	{
		re:   regexp.MustCompile(`(?s)<ul>(.*?)</ul>`),
		repl: func(m []string) string { return listItems(m[1], false) },
	},
	{
		re:   regexp.MustCompile(`(?s)<ol>(.*?)</ol>`),
		repl: func(m []string) string { return listItems(m[1], true) },
	},
	replace(regexp.MustCompile(`(?s)<p>(.*?)</p>`), "${1}\n\n"),
	replace(regexp.MustCompile(`<br\s*/?>`), "\n"),
}

func listItems(inner string, ordered bool) string {
	items := liRe.FindAllStringSubmatch(inner, -1)
	lines := make([]string, 0, len(items))
	for i, item := range items {
		marker := "-"
		if ordered {
			marker = strconv.Itoa(i+1) + "."
		}
		lines = append(lines, marker+" "+strings.TrimSpace(item[1]))
	}
	return strings.Join(lines, "\n")
}

// ToMarkdown converts a Matrix HTML body to markdown. Unknown tags are
// dropped and HTML entities are decoded.
func ToMarkdown(body string) string {
	text := replyRe.ReplaceAllString(body, "")
	for _, r := range rules {
		text = r.apply(text)
	}
	text = tagRe.ReplaceAllString(text, "")
	return strings.TrimSpace(html.UnescapeString(text))
}

// Parse returns the relayable text of a Matrix message: the markdown form of
// its HTML body when present, the plain body otherwise.
func Parse(content *event.MessageEventContent) string {
	if content == nil {
		return ""
	}
	if content.Format != event.FormatHTML || content.FormattedBody == "" {
		return content.Body
	}
	return ToMarkdown(content.FormattedBody)
}
