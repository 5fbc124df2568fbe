package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StorageName derives a storage filename from the uploaded filename:
// "{unix-millis}_{random}{ext}". The random suffix is the collision guard;
// concurrent uploads can share a millisecond.
func StorageName(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d_%s%s", time.Now().UnixMilli(), suffix, ext)
}
