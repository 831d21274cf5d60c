package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// RunFolderPath generates the archive folder of one pipeline run
// Format: runs/<domain>/YYYY/MM/DD/<domain>-YYYY-MM-DD-HH-MM-SS
func RunFolderPath(domain string, timestamp time.Time) string {
	ts := timestamp.UTC()
	return fmt.Sprintf("runs/%s/%04d/%02d/%02d/%s-%04d-%02d-%02d-%02d-%02d-%02d",
		domain,
		ts.Year(), ts.Month(), ts.Day(),
		domain,
		ts.Year(), ts.Month(), ts.Day(),
		ts.Hour(), ts.Minute(), ts.Second())
}

// dirPrefix turns a directory path into an object-listing prefix
func dirPrefix(dirPath string) string {
	p := strings.Trim(dirPath, "/")
	if p == "" || p == "." {
		return ""
	}
	return p + "/"
}

// GetContentType determines the MIME content type based on file extension
func GetContentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".sz":
		return "application/x-snappy-framed"
	case ".html":
		return "text/html"
	case ".md":
		return "text/markdown"
	case ".png":
		return "image/png"
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/octet-stream"
	}
}
