package utils

import (
	"fmt"
	"os"
	"strings"
)

// SaveCover writes the latest album art to disk twice: once under a stable
// name for "what's on right now" consumers and once keyed by guid so the
// /static route can serve history.
func SaveCover(storageDir, guid string, image []byte, extension string) error {
	os.WriteFile(fmt.Sprintf("%s/current.jpeg", storageDir), image, 0644)
	return os.WriteFile(fmt.Sprintf("%s/cover.%s.%s", storageDir, guid, extension), image, 0644)
}

func LoadCover(storageDir, guid, extension string) (string, error) {
	if strings.ContainsAny(guid, "/\\") || strings.Contains(guid, "..") {
		return "", fmt.Errorf("invalid cover id")
	}
	img, err := os.ReadFile(fmt.Sprintf("%s/cover.%s.%s", storageDir, guid, extension))
	if err != nil {
		return "", err
	}
	return string(img), nil
}
