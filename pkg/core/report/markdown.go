package report

import (
	"bytes"
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"actuarial_valuation/pkg/core/valuation"
)

// Document is the human-readable summary of a batch.
type Document struct {
	Title         string
	ValuationDate time.Time
	Sections      []Section
}

// Section is the summary of one run.
type Section struct {
	Heading string
	Summary valuation.Summary
}

// Markdown renders the document with thousands-separated amounts.
func Markdown(doc Document) string {
	p := message.NewPrinter(language.English)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	fmt.Fprintf(&b, "Valuation date: %s\n", doc.ValuationDate.Format("2006-01-02"))
	for _, sec := range doc.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n", sec.Heading)
		fmt.Fprintf(&b, "%d policies, %d periods.\n\n", sec.Summary.Policies, sec.Summary.Periods)
		b.WriteString("| Item | Value |\n")
		b.WriteString("|---|---:|\n")
		for _, it := range sec.Summary.Items {
			fmt.Fprintf(&b, "| %s | %s |\n", it.Name, amount(p, it.Value))
		}
	}
	return b.String()
}

func amount(p *message.Printer, v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return p.Sprintf("%.2f", v)
}

// RenderHTML converts the Markdown summary to a standalone HTML page.
func RenderHTML(title, md string) ([]byte, error) {
	gm := goldmark.New(goldmark.WithExtensions(extension.Table))

	var body bytes.Buffer
	if err := gm.Convert([]byte(md), &body); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}

	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString(title))
	page.WriteString("</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}
