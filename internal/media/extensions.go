package media

import (
	"path/filepath"
	"strings"
)

var videoExtensions = []string{
	".mp4", ".mov", ".avi", ".mkv", ".flv", ".wmv", ".webm", ".mpeg", ".mpg",
}

// SupportedExtensions lists the video container extensions accepted as input.
func SupportedExtensions() []string {
	out := make([]string, len(videoExtensions))
	copy(out, videoExtensions)
	return out
}

// IsVideo reports whether path has a supported video extension.
func IsVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range videoExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
