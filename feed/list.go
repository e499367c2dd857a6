package feed

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Info describes a published feed file.
type Info struct {
	Name     string    `json:"name"`
	Title    string    `json:"title"`
	Items    int       `json:"items"`
	Size     int64     `json:"size_bytes"`
	Modified time.Time `json:"modified"`
}

// List returns the .xml feeds in dir sorted by name. A missing directory is
// an empty list. Files that fail to parse are listed without a title.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feed directory: %w", err)
	}

	fp := gofeed.NewParser()
	infos := []Info{}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".xml") {
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			continue
		}

		info := Info{
			Name:     entry.Name(),
			Size:     fi.Size(),
			Modified: fi.ModTime().UTC(),
		}

		if parsed, err := parseFile(fp, filepath.Join(dir, entry.Name())); err == nil {
			info.Title = parsed.Title
			info.Items = len(parsed.Items)
		}

		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Open returns the path of a published feed in dir, refusing names that are
// not plain .xml file names.
func Open(dir, name string) (string, error) {
	if !ValidName(name) || !strings.HasSuffix(name, ".xml") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	path := filepath.Join(dir, name)
	fi, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return "", fmt.Errorf("%w: %q is a directory", ErrInvalidName, name)
	}
	return path, nil
}

func parseFile(fp *gofeed.Parser, path string) (*gofeed.Feed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	parsed, err := fp.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	return parsed, nil
}
