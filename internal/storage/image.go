package storage

import "strings"

var imageExtensions = map[string]string{
	"image/gif":                ".gif",
	"image/jpeg":               ".jpg",
	"image/pjpeg":              ".jpg",
	"image/png":                ".png",
	"image/x-png":              ".png",
	"image/vnd.microsoft.icon": ".ico",
	"image/x-icon":             ".ico",
	"image/x-ico":              ".ico",
	"image/ico":                ".ico",
	"image/svg+xml":            ".svg",
	"image/svg":                ".svg",
	"image/webp":               ".webp",
}

// ImageExtension returns the file extension, including the leading dot,
// for an image MIME type. It returns "" for types that are not images we
// publish.
func ImageExtension(mimeType string) string {
	t := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return imageExtensions[t]
}

// validFilename reports whether name is a bare file name with no directory
// components.
func validFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "\x00")
}
