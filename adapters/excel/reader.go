package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"answergate/domain/remediation"

	"github.com/xuri/excelize/v2"
)

// QAReader loads pre-authored (question, answer) pairs from spreadsheets.
// SME teams tend to maintain their FAQ material in Excel; this lets a
// deployment seed its remediation store from that file directly.
type QAReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewQAReader creates a reader that handles both Excel and CSV files
func NewQAReader(filePath string) *QAReader {
	fileType := "xlsx"
	if strings.ToLower(filepath.Ext(filePath)) == ".csv" {
		fileType = "csv"
	}
	return &QAReader{filePath: filePath, fileType: fileType}
}

// ReadEntries reads Q&A rows into remediation entries. The first row must be
// a header containing "question" and "answer" columns (case-insensitive);
// extra columns become entry metadata. Rows with an empty question are
// skipped, rows with an empty answer import as unanswered.
func (r *QAReader) ReadEntries() ([]remediation.Entry, error) {
	log.Printf("[QAReader] Reading %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	default:
		rows, err = r.readExcelRows()
	}
	if err != nil {
		return nil, err
	}

	return rowsToEntries(rows)
}

func (r *QAReader) readExcelRows() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("Excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func (r *QAReader) readCSVRows() ([][]string, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV rows: %w", err)
	}
	return rows, nil
}

func rowsToEntries(rows [][]string) ([]remediation.Entry, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("file has no data rows")
	}

	header := rows[0]
	questionCol, answerCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "question":
			questionCol = i
		case "answer":
			answerCol = i
		}
	}
	if questionCol == -1 || answerCol == -1 {
		return nil, fmt.Errorf("header must contain question and answer columns, got %v", header)
	}

	entries := make([]remediation.Entry, 0, len(rows)-1)
	skipped := 0
	for _, row := range rows[1:] {
		question := cell(row, questionCol)
		if question == "" {
			skipped++
			continue
		}

		entry := remediation.Entry{
			Question: question,
			Answer:   cell(row, answerCol),
		}
		for i, name := range header {
			if i == questionCol || i == answerCol {
				continue
			}
			if value := cell(row, i); value != "" {
				if entry.Metadata == nil {
					entry.Metadata = make(map[string]string)
				}
				entry.Metadata[strings.ToLower(strings.TrimSpace(name))] = value
			}
		}
		entries = append(entries, entry)
	}

	if skipped > 0 {
		log.Printf("[QAReader] Skipped %d rows without a question", skipped)
	}
	log.Printf("[QAReader] Read %d Q&A entries", len(entries))
	return entries, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
