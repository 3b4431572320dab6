package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/aluiziolira/go-scrape-shop/models"
)

// JSONStore keeps the record set as a JSON array in a single file.
// A missing file is an empty record set.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONStore returns a store backed by path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads every stored product.
func (js *JSONStore) Load(_ context.Context) ([]models.Product, error) {
	js.mu.Lock()
	defer js.mu.Unlock()

	data, err := os.ReadFile(js.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.Product{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read json store: %w", err)
	}

	products := []models.Product{}
	if len(data) == 0 {
		return products, nil
	}
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("decode json store %q: %w", js.path, err)
	}
	return products, nil
}

// Save replaces the file contents with products.
func (js *JSONStore) Save(_ context.Context, products []models.Product) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if products == nil {
		products = []models.Product{}
	}
	return writeAtomic(js.path, func(f *os.File) error {
		buffer := bufio.NewWriter(f)
		encoder := json.NewEncoder(buffer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(products); err != nil {
			return fmt.Errorf("encode json store: %w", err)
		}
		if err := buffer.Flush(); err != nil {
			return fmt.Errorf("flush json store: %w", err)
		}
		return nil
	})
}

// Close is a no-op; the file is only open during Load and Save.
func (js *JSONStore) Close() error {
	return nil
}
