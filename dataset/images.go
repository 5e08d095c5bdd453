package dataset

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ImageFile is a raw image read from disk, keyed by the identifier derived
// from its filename stem. It feeds the rendering path; the core never decodes
// it.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Data is the raw bytes of the image file.
	Data []byte
	// ID is the filename without extension, matching the annotation
	// identifier.
	ID string
}

// LoadImageDir reads all image files from a directory, sorted by identifier.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: Slice of ImageFile, each containing the raw bytes of an image file.
// - error: Error if loading fails.
func LoadImageDir(dir string) ([]ImageFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var images []ImageFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		ext := filepath.Ext(file.Name())
		switch ext {
		case ".jpg", ".jpeg", ".png", ".bmp":
			imgPath := filepath.Join(dir, file.Name())
			data, readErr := os.ReadFile(imgPath)
			if readErr != nil {
				return nil, readErr
			}
			images = append(images, ImageFile{
				Path: imgPath,
				Data: data,
				ID:   strings.TrimSuffix(file.Name(), ext),
			})
		}
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].ID < images[j].ID
	})

	return images, nil
}
