package service

import (
	"fmt"
	"regexp"
	"time"
)

// unsafeChars matches every character that may not appear in a generated
// object key component.
var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9.-]`)

// documentFolders maps the known document types to their storage path
// prefixes. Unknown types fall back to the generic documents folder; tag
// validation is a presentation-layer concern.
var documentFolders = map[string]string{
	"SPI File":         "spi-files",
	"Batch File":       "batch-files",
	"User Document":    "user-documents",
	"Student Document": "student-documents",
}

func folderFor(documentType string) string {
	if folder, ok := documentFolders[documentType]; ok {
		return folder
	}
	return "documents"
}

func sanitizeFileName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// buildObjectKey generates `{folder}/{unixMillis}_{sanitizedName}`.
// The timestamp prefix keeps keys practically unique for repeated uploads
// of identically named files; a true same-millisecond collision surfaces
// as a path conflict at the store rather than an overwrite.
func buildObjectKey(folder string, ts time.Time, fileName string) string {
	return fmt.Sprintf("%s/%d_%s", folder, ts.UnixMilli(), sanitizeFileName(fileName))
}
