package wordsource

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
)

// ImportConfig defines where word fields live in a spreadsheet.
type ImportConfig struct {
	FilePath         string
	SheetName        string
	WordColumn       string
	PhoneticColumn   string
	DefinitionColumn string
	EtymologyColumn  string
	ExampleColumn    string
	TagsColumn       string // comma-separated tags, optional
	StartRow         int    // 1-based, rows above it are skipped
}

// DefaultImportConfig expects a header row and the columns in the
// order the export sheet writes them.
func DefaultImportConfig(path string) ImportConfig {
	return ImportConfig{
		FilePath:         path,
		SheetName:        "Sheet1",
		WordColumn:       "A",
		PhoneticColumn:   "B",
		DefinitionColumn: "C",
		EtymologyColumn:  "D",
		ExampleColumn:    "E",
		TagsColumn:       "F",
		StartRow:         2,
	}
}

// ImportResult reports what an import did.
type ImportResult struct {
	TotalProcessed int
	Added          int
	Skipped        int
	Errors         []string
}

// ImportWords reads a spreadsheet and adds valid words to the catalog.
// Duplicate and malformed rows are reported, not fatal.
func ImportWords(catalog *word.Catalog, cfg ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenFile(cfg.FilePath)
	if err != nil {
		return nil, shared.WrapError("wordsource", "ImportWords", shared.ErrImportFailed, "open spreadsheet", err)
	}
	defer f.Close()

	rows, err := f.GetRows(cfg.SheetName)
	if err != nil {
		return nil, shared.WrapError("wordsource", "ImportWords", shared.ErrImportFailed, "read sheet "+cfg.SheetName, err)
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		rowNum := i + 1
		if rowNum < cfg.StartRow {
			continue
		}
		result.TotalProcessed++

		w := word.Word{
			Text:       cell(row, cfg.WordColumn),
			Phonetic:   cell(row, cfg.PhoneticColumn),
			Definition: cell(row, cfg.DefinitionColumn),
			Etymology:  cell(row, cfg.EtymologyColumn),
			Example:    cell(row, cfg.ExampleColumn),
		}
		if tags := cell(row, cfg.TagsColumn); tags != "" {
			for _, tag := range strings.Split(tags, ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					w.Tags = append(w.Tags, tag)
				}
			}
		}

		if err := w.Validate(); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		if err := catalog.Add(w); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		result.Added++
	}
	return result, nil
}

func cell(row []string, column string) string {
	if column == "" {
		return ""
	}
	idx := columnIndex(column)
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func columnIndex(column string) int {
	column = strings.ToUpper(strings.TrimSpace(column))
	idx := 0
	for i := 0; i < len(column); i++ {
		c := column[i]
		if c < 'A' || c > 'Z' {
			return -1
		}
		idx = idx*26 + int(c-'A'+1)
	}
	return idx - 1
}
