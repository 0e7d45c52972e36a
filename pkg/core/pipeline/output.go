package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"actuarial_valuation/pkg/core/config"
	"actuarial_valuation/pkg/core/report"
)

// writeOutputs writes every requested format into outputDir/<run id> and
// returns that directory.
func (o *Orchestrator) writeOutputs(res *BatchResult, valuationDate time.Time) (string, error) {
	dir := filepath.Join(o.outputDir, res.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	wants := make(map[string]bool, len(o.formats))
	for _, f := range o.formats {
		wants[f] = true
	}

	for _, r := range res.Runs {
		prefix := fileName(r.Set) + "_" + fileName(r.Product)
		tables := []*report.Table{r.PeriodTable, r.PolicyTable}
		for _, t := range tables {
			if wants[config.FormatCSV] {
				if err := writeFile(filepath.Join(dir, prefix+"_"+t.Name+".csv"), func(w io.Writer) error {
					return report.WriteCSV(w, t)
				}); err != nil {
					return "", err
				}
			}
			if wants[config.FormatJSON] {
				if err := writeFile(filepath.Join(dir, prefix+"_"+t.Name+".json"), func(w io.Writer) error {
					return report.WriteJSON(w, t)
				}); err != nil {
					return "", err
				}
			}
		}
	}

	if !wants[config.FormatMarkdown] && !wants[config.FormatHTML] {
		return dir, nil
	}
	doc := report.Document{Title: "Valuation Report " + res.RunID, ValuationDate: valuationDate}
	for _, r := range res.Runs {
		doc.Sections = append(doc.Sections, report.Section{Heading: r.Set + " / " + r.Product, Summary: r.Summary})
	}
	md := report.Markdown(doc)
	if wants[config.FormatMarkdown] {
		if err := os.WriteFile(filepath.Join(dir, "summary.md"), []byte(md), 0o644); err != nil {
			return "", fmt.Errorf("write summary: %w", err)
		}
	}
	if wants[config.FormatHTML] {
		page, err := report.RenderHTML(doc.Title, md)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(dir, "summary.html"), page, 0o644); err != nil {
			return "", fmt.Errorf("write summary: %w", err)
		}
	}
	return dir, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// fileName keeps names safe for any file system.
func fileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
