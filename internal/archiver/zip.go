// Package archiver packages a room's retained captures into a ZIP stream.
// No third-party ZIP library appears anywhere in the retrieved example
// corpus, so this one ambient concern is built on the standard library's
// archive/zip.
package archiver

import (
	"archive/zip"
	"bytes"
	"fmt"
	"time"

	"github.com/n0remac/classroom-ptt/internal/storage"
)

const readmeName = "README.txt"

// BuildZIP writes every entry as a ZIP member, appending a README.txt
// unless one is already present among entries.
func BuildZIP(code string, entries []storage.Entry, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	hasReadme := false
	for _, e := range entries {
		if e.Filename == readmeName {
			hasReadme = true
		}
		f, err := w.Create(e.Filename)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(e.Data); err != nil {
			return nil, err
		}
	}

	if !hasReadme {
		f, err := w.Create(readmeName)
		if err != nil {
			return nil, err
		}
		readme := fmt.Sprintf("Room %s\nDownloaded %s\n", code, now.Format(time.RFC3339))
		if _, err := f.Write([]byte(readme)); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
