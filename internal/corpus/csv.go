// Package corpus reads source studies from CSV exports into ingestion items.
package corpus

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"ragqa/internal/domain"
)

// Column names of the study export. Text comes from abstract, or full_text when abstract is empty.
const (
	ColIdentifier = "pmid"
	ColTitle      = "title"
	ColAuthors    = "authors"
	ColDate       = "date"
	ColLink       = "full_text_link"
	ColAbstract   = "abstract"
	ColFullText   = "full_text"
)

var known = map[string]bool{
	ColIdentifier: true, ColTitle: true, ColAuthors: true, ColDate: true,
	ColLink: true, ColAbstract: true, ColFullText: true,
}

// LoadFile reads the CSV at path.
func LoadFile(path string) ([]domain.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	items, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return items, nil
}

// Read parses a CSV with a header row. Missing columns read as empty strings and
// unknown columns are kept in Item.Extra.
func Read(r io.Reader) ([]domain.Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var items []domain.Item
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = rec[i]
			}
		}
		items = append(items, toItem(row))
	}
	return items, nil
}

func toItem(row map[string]string) domain.Item {
	text := row[ColAbstract]
	if text == "" {
		text = row[ColFullText]
	}
	it := domain.Item{
		Title:      row[ColTitle],
		Text:       text,
		Identifier: row[ColIdentifier],
		Authors:    row[ColAuthors],
		Date:       row[ColDate],
		Link:       row[ColLink],
	}
	for k, v := range row {
		if known[k] || k == "" || v == "" {
			continue
		}
		if it.Extra == nil {
			it.Extra = make(map[string]string)
		}
		it.Extra[k] = v
	}
	return it
}
