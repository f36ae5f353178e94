// Package adapterutil holds small helpers shared by the storage backends.
package adapterutil

import (
	"path/filepath"
	"strings"
)

// JoinKey prefixes key with the backend's configured directory, normalizing
// redundant slashes so every backend sees a clean relative path.
func JoinKey(directory, key string) string {
	directory = strings.Trim(directory, "/")
	key = strings.TrimLeft(key, "/")
	if directory == "" {
		return key
	}
	return directory + "/" + key
}

// JoinURL glues a base address and an object key into a public URL.
func JoinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

var imageContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".svg":  "image/svg+xml",
}

// ContentTypeFor picks a Content-Type from the file extension, falling back
// to application/octet-stream.
func ContentTypeFor(path string) string {
	if ct, ok := imageContentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}
