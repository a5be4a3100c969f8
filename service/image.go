package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zlnvch/collabdocs/apperr"
)

const MaxProfileImageBytes = 1024 * 1024

var imagePrefixes = []string{
	"data:image/jpeg;base64,",
	"data:image/jpg;base64,",
	"data:image/png;base64,",
	"data:image/gif;base64,",
	"data:image/webp;base64,",
}

var base64Regex = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)

// ValidateProfileImage checks a base64 data URL and returns its estimated
// decoded size.
func ValidateProfileImage(dataURL string) (int, error) {
	var payload string
	found := false
	for _, prefix := range imagePrefixes {
		if rest, ok := strings.CutPrefix(dataURL, prefix); ok {
			payload = rest
			found = true
			break
		}
	}
	if !found {
		return 0, apperr.Validation("unsupported image format, use JPEG, PNG, GIF or WebP")
	}

	if payload == "" || !base64Regex.MatchString(payload) {
		return 0, apperr.Validation("invalid base64 image data")
	}

	size := (len(payload)*3 + 3) / 4
	if size > MaxProfileImageBytes {
		return size, apperr.Validation(fmt.Sprintf("image too large, maximum is %d bytes", MaxProfileImageBytes)).
			WithContext("size", size)
	}

	return size, nil
}
