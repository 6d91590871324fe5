package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// AudioExtensions lists the file extensions treated as audio when scanning
// directories.
var AudioExtensions = []string{".wav", ".mp3", ".flac", ".m4a", ".ogg", ".opus", ".aac", ".webm"}

// MakeDir creates a directory with all parent directories
func MakeDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// DeleteFile removes a file
func DeleteFile(path string) error {
	return os.Remove(path)
}

// MoveFile moves or renames a file
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move file from %s to %s: %w", src, dst, err)
	}
	return nil
}

// IsAudioFile reports whether path has a known audio extension.
func IsAudioFile(path string) bool {
	return slices.Contains(AudioExtensions, strings.ToLower(filepath.Ext(path)))
}

// FindAudioFiles walks root and returns every audio file under it in
// lexical order. Hidden directories are skipped.
func FindAudioFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsAudioFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return files, nil
}
