package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// LoadFile loads documents from a standalone file, dispatching on extension:
// .pdf and .xlsx get format-aware loaders, everything else is read as plain
// text.
func LoadFile(path string) ([]Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return LoadPDF(path)
	case ".xlsx", ".xls":
		return LoadXLSX(path)
	default:
		doc, err := LoadTextFile(path)
		if err != nil {
			return nil, err
		}
		return []Document{doc}, nil
	}
}

// LoadTextFile reads a plain-text file as a single document titled by the
// file's base name.
func LoadTextFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("loading text file: %w", err)
	}
	return Document{Title: stem(path), Text: strings.TrimSpace(string(data))}, nil
}

// LoadPDF extracts one document per non-empty page. Pages that fail text
// extraction are skipped.
func LoadPDF(path string) ([]Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	base := stem(path)
	var docs []Document
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		docs = append(docs, Document{
			Title: fmt.Sprintf("%s (page %d)", base, i),
			Text:  text,
		})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no text extracted from PDF %s", path)
	}
	return docs, nil
}

// LoadXLSX extracts one document per non-empty sheet, rows rendered as
// pipe-delimited table lines.
func LoadXLSX(path string) ([]Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	base := stem(path)
	var docs []Document
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		var content strings.Builder
		for _, row := range rows {
			content.WriteString("| " + strings.Join(row, " | ") + " |\n")
		}
		docs = append(docs, Document{
			Title: base + "/" + sheet,
			Text:  strings.TrimSpace(content.String()),
		})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no data found in XLSX %s", path)
	}
	return docs, nil
}

// stem returns the file name without directory or extension.
func stem(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
