package decode

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

// maxZipEntryBytes caps how much of a single archive entry is read.
const maxZipEntryBytes = 128 << 20

// zipPreference lists inner formats in the order they are looked for.
var zipPreference = []string{"fit", "gpx", "tcx"}

// decodeZIP decodes the first entry of the most preferred format. Archive order
// decides between entries of the same format.
func decodeZIP(data []byte) (*ParsedActivity, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open ZIP archive: %w", err)
	}

	entry, ext := pickZipEntry(zr.File)
	if entry == nil {
		return nil, fmt.Errorf("%w: ZIP archive holds no fit, gpx or tcx file", ErrNoActivity)
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open ZIP entry %s: %w", entry.Name, err)
	}
	defer rc.Close()

	inner, err := io.ReadAll(io.LimitReader(rc, maxZipEntryBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read ZIP entry %s: %w", entry.Name, err)
	}

	return Decode(ext, inner)
}

func pickZipEntry(files []*zip.File) (*zip.File, string) {
	for _, want := range zipPreference {
		for _, f := range files {
			if f.FileInfo().IsDir() {
				continue
			}
			ext := strings.TrimPrefix(strings.ToLower(path.Ext(f.Name)), ".")
			if ext == want {
				return f, ext
			}
		}
	}
	return nil, ""
}
