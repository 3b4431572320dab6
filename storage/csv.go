package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"sync"

	"github.com/aluiziolira/go-scrape-shop/models"
)

var csvHeader = []string{"product_title", "product_price", "path_to_image"}

// CSVStore keeps the record set as a CSV file with a header row.
type CSVStore struct {
	path string
	mu   sync.Mutex
}

// NewCSVStore returns a store backed by path.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Load reads every stored product. A missing file is an empty record set.
func (cs *CSVStore) Load(_ context.Context) ([]models.Product, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	f, err := os.Open(cs.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Product{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open csv store: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(csvHeader)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []models.Product{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected csv header %v", header)
		}
	}

	products := []models.Product{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		price, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse price for %q: %w", record[0], err)
		}
		products = append(products, models.Product{
			Title:     record[0],
			Price:     price,
			ImagePath: record[2],
		})
	}
	return products, nil
}

// Save replaces the file contents with products.
func (cs *CSVStore) Save(_ context.Context, products []models.Product) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	return writeAtomic(cs.path, func(f *os.File) error {
		writer := csv.NewWriter(f)
		if err := writer.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		for _, p := range products {
			record := []string{
				p.Title,
				strconv.FormatFloat(p.Price, 'f', -1, 64),
				p.ImagePath,
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("write csv record: %w", err)
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("flush csv records: %w", err)
		}
		return nil
	})
}

// Close is a no-op; the file is only open during Load and Save.
func (cs *CSVStore) Close() error {
	return nil
}
