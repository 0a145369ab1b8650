package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
	"golang.org/x/sync/semaphore"
)

// ImageFetcher downloads cover images into one directory per category.
type ImageFetcher struct {
	fetcher *Fetcher
	root    string
	sem     *semaphore.Weighted
}

// NewImageFetcher stores images under root with at most workers downloads
// in flight.
func NewImageFetcher(fetcher *Fetcher, root string, workers int) *ImageFetcher {
	if workers <= 0 {
		workers = 1
	}
	return &ImageFetcher{
		fetcher: fetcher,
		root:    root,
		sem:     semaphore.NewWeighted(int64(workers)),
	}
}

// Path is where the image for key is stored.
func (i *ImageFetcher) Path(key models.AssetKey) string {
	return filepath.Join(i.root, parser.SafeName(key.Category), parser.SafeName(key.UPC)+".jpg")
}

// FetchAndStore downloads imageURL and writes it to Path(key). Every failure
// is returned as an *AssetError.
func (i *ImageFetcher) FetchAndStore(ctx context.Context, imageURL string, key models.AssetKey) error {
	if imageURL == "" {
		return &AssetError{URL: imageURL, Key: key, Err: errors.New("no image url")}
	}
	if key.UPC == "" {
		return &AssetError{URL: imageURL, Key: key, Err: errors.New("no upc to name the file")}
	}

	if err := i.sem.Acquire(ctx, 1); err != nil {
		return &AssetError{URL: imageURL, Key: key, Err: err}
	}
	defer i.sem.Release(1)

	body, err := i.fetcher.FetchBytes(ctx, imageURL)
	if err != nil {
		return &AssetError{URL: imageURL, Key: key, Err: err}
	}
	if err := writeFileAtomic(i.Path(key), body); err != nil {
		return &AssetError{URL: imageURL, Key: key, Err: err}
	}
	i.fetcher.Metrics.IncImages()
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".part-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %q: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %q: %w", path, err)
	}
	return nil
}
