package export

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/lifeindex/internal/models"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Format is an export file format
type Format string

const (
	FormatParquet Format = "parquet"
	FormatYAML    Format = "yaml"
)

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "parquet":
		return FormatParquet, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported export format: %s (supported: parquet, yaml)", name)
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer export format from %q", path)
	}
	return ParseFormat(ext)
}

// Row is the flat Parquet layout of one catalog item
type Row struct {
	ID            int64    `parquet:"id"`
	ImageLocation string   `parquet:"image_location"`
	Title         string   `parquet:"title"`
	Category      string   `parquet:"category"`
	Tags          []string `parquet:"tags,list"`
	CreatedAtMs   int64    `parquet:"created_at_ms"`
	AnalysisText  string   `parquet:"analysis_text"`
}

func rowFromItem(item models.Item) Row {
	return Row{
		ID:            item.ID,
		ImageLocation: item.ImageLocation,
		Title:         item.Title,
		Category:      item.Category,
		Tags:          item.Tags.Clone(),
		CreatedAtMs:   item.CreatedAt.UnixMilli(),
		AnalysisText:  item.AnalysisText,
	}
}

// Item converts the row back into a catalog item.
func (r Row) Item() models.Item {
	return models.Item{
		ID:            r.ID,
		ImageLocation: r.ImageLocation,
		Title:         r.Title,
		Category:      r.Category,
		Tags:          models.Tags(r.Tags),
		CreatedAt:     time.UnixMilli(r.CreatedAtMs),
		AnalysisText:  r.AnalysisText,
	}
}

// WriteParquet writes items as one Parquet file.
func WriteParquet(w io.Writer, items []models.Item) error {
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, rowFromItem(item))
	}

	writer := parquet.NewGenericWriter[Row](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// ReadParquet loads the rows of a Parquet export.
func ReadParquet(r io.ReaderAt, size int64) ([]Row, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var records []Row
	rows := make([]Row, 128)
	for {
		n, err := reader.Read(rows)
		records = append(records, rows[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return records, nil
}

// Document is the YAML export layout
type Document struct {
	ExportedAt string        `yaml:"exported_at"`
	Count      int           `yaml:"count"`
	Items      []models.Item `yaml:"items"`
}

// WriteYAML writes items as a single YAML document.
func WriteYAML(w io.Writer, items []models.Item, exportedAt time.Time) error {
	doc := Document{
		ExportedAt: exportedAt.UTC().Format(time.RFC3339),
		Count:      len(items),
		Items:      items,
	}
	if doc.Items == nil {
		doc.Items = []models.Item{}
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return encoder.Close()
}

// ReadYAML parses a YAML export.
func ReadYAML(r io.Reader) (Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("failed to parse YAML export: %w", err)
	}
	return doc, nil
}

// ToFile writes items to path in the given format. A failed export leaves
// nothing at path.
func ToFile(path string, format Format, items []models.Item) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	switch format {
	case FormatParquet:
		err = WriteParquet(tmp, items)
	case FormatYAML:
		err = WriteYAML(tmp, items, time.Now())
	default:
		err = fmt.Errorf("unsupported export format: %s", format)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}

	slog.Debug("Export written", "path", path, "format", format, "items", len(items))
	return nil
}
