package corpus

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"

	"keiri-backend/models"
	"keiri-backend/storage"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// Well-known locations inside the corpus store.
const (
	IndexDocsDir     = "docs_for_index"
	ExamplesDir      = "example_accounting_entry"
	AccountTitlesCSV = "勘定科目一覧.csv"
	RegulationTxt    = "減価償却に関する法令.txt"

	// RegulationMissing marks an absent regulation text in-band so the
	// prompt never carries a silently blank section.
	RegulationMissing = "（法令テキストが見つかりませんでした）"
)

// Loader reads regulatory texts, reference tables, and historical journal
// examples from the corpus store. Everything is read wholesale per call; the
// corpus is small and the store is the source of truth.
type Loader struct {
	store storage.Storage
}

// NewLoader creates a loader over a corpus document store.
func NewLoader(store storage.Storage) *Loader {
	return &Loader{store: store}
}

// LoadLawTexts returns every law XML file at the corpus root, sorted by name.
// These are included verbatim in prompts, never chunked.
func (l *Loader) LoadLawTexts(ctx context.Context) ([]models.LawCorpusEntry, error) {
	names, err := l.store.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list corpus root: %w", err)
	}
	sort.Strings(names)

	var entries []models.LawCorpusEntry
	for _, name := range names {
		if !strings.HasSuffix(name, ".xml") {
			continue
		}
		data, err := l.store.Read(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read law text %s: %w", name, err)
		}
		entries = append(entries, models.LawCorpusEntry{
			Name:    name,
			Content: string(data),
		})
	}
	return entries, nil
}

// LoadRegulationText returns the depreciation regulation text, or the
// RegulationMissing marker when the file is absent.
func (l *Loader) LoadRegulationText(ctx context.Context) (string, error) {
	ok, err := l.store.Exists(ctx, RegulationTxt)
	if err != nil {
		return "", fmt.Errorf("failed to check regulation text: %w", err)
	}
	if !ok {
		return RegulationMissing, nil
	}
	data, err := l.store.Read(ctx, RegulationTxt)
	if err != nil {
		return "", fmt.Errorf("failed to read regulation text: %w", err)
	}
	return string(data), nil
}

// LoadAccountTitles reads the chart-of-accounts CSV. The file ships from
// Excel exports, so a UTF-8 BOM is tolerated and the 勘定科目/解説 columns are
// located by header name.
func (l *Loader) LoadAccountTitles(ctx context.Context) ([]models.AccountTitle, error) {
	data, err := l.store.Read(ctx, AccountTitlesCSV)
	if err != nil {
		return nil, fmt.Errorf("failed to read account titles: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse account titles CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	titleCol, descCol := 0, 1
	for i, h := range rows[0] {
		switch strings.TrimSpace(h) {
		case "勘定科目":
			titleCol = i
		case "解説":
			descCol = i
		}
	}

	var titles []models.AccountTitle
	for _, row := range rows[1:] {
		if titleCol >= len(row) {
			continue
		}
		title := strings.TrimSpace(row[titleCol])
		if title == "" {
			continue
		}
		desc := ""
		if descCol < len(row) {
			desc = strings.TrimSpace(row[descCol])
		}
		titles = append(titles, models.AccountTitle{Title: title, Description: desc})
	}
	return titles, nil
}

// LoadJournalExamples reads every journal-entry spreadsheet and renders the
// first sheet of each as an aligned text table for few-shot prompting.
// Unreadable files are logged and skipped; historical examples are optional
// grounding, not required input.
func (l *Loader) LoadJournalExamples(ctx context.Context) ([]models.JournalExampleSet, error) {
	names, err := l.store.List(ctx, ExamplesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal examples: %w", err)
	}
	sort.Strings(names)

	var sets []models.JournalExampleSet
	for _, name := range names {
		if !strings.HasSuffix(name, ".xlsx") && !strings.HasSuffix(name, ".xls") {
			continue
		}
		data, err := l.store.Read(ctx, path.Join(ExamplesDir, name))
		if err != nil {
			log.Printf("Warning: failed to read journal example %s: %v", name, err)
			continue
		}
		table, err := renderWorkbook(data)
		if err != nil {
			log.Printf("Warning: failed to parse journal example %s: %v", name, err)
			continue
		}
		if table == "" {
			continue
		}
		sets = append(sets, models.JournalExampleSet{Source: name, Table: table})
	}
	return sets, nil
}

// renderWorkbook flattens the first sheet of an xlsx workbook into an
// aligned, whitespace-padded text table.
func renderWorkbook(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return "", err
	}
	return renderTable(rows), nil
}

// renderTable pads each column to its widest cell so the model sees the same
// shape a human would in a spreadsheet.
func renderTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if n := len([]rune(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			b.WriteString(cell)
			if i < len(row)-1 {
				for pad := len([]rune(cell)); pad < widths[i]+2; pad++ {
					b.WriteString(" ")
				}
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// LoadIndexDocuments reads the raw documents the vector index is built from.
// PDFs are flattened to plain text; anything else is treated as text already.
func (l *Loader) LoadIndexDocuments(ctx context.Context) ([]IndexDocument, error) {
	names, err := l.store.List(ctx, IndexDocsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list index documents: %w", err)
	}
	sort.Strings(names)

	var docs []IndexDocument
	for _, name := range names {
		data, err := l.store.Read(ctx, path.Join(IndexDocsDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read index document %s: %w", name, err)
		}

		var text string
		if strings.HasSuffix(strings.ToLower(name), ".pdf") {
			text, err = extractPDFText(data)
			if err != nil {
				return nil, fmt.Errorf("failed to extract text from %s: %w", name, err)
			}
		} else {
			text = string(data)
		}

		text = strings.TrimSpace(text)
		if text == "" {
			log.Printf("Warning: index document %s is empty, skipping", name)
			continue
		}
		docs = append(docs, IndexDocument{ID: name, Text: text})
	}
	return docs, nil
}

// IndexDocument is one raw source for the vector index build.
type IndexDocument struct {
	ID   string
	Text string
}

func extractPDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var buf bytes.Buffer
	b, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract plain text: %w", err)
	}
	if _, err := buf.ReadFrom(b); err != nil {
		return "", fmt.Errorf("failed to read text: %w", err)
	}
	return buf.String(), nil
}

// AddIndexDocument stores a new raw document for the next index rebuild.
func (l *Loader) AddIndexDocument(ctx context.Context, name string, data []byte) error {
	if strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid document name: %s", name)
	}
	return l.store.Put(ctx, path.Join(IndexDocsDir, name), data)
}
