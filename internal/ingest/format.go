package ingest

import "fmt"

var byteUnits = []string{"Bytes", "KB", "MB", "GB", "TB", "PB"}

// FormatByteSize renders a byte count the way the site has always shown it:
// "0 Bytes", "1.50 KB", "1.00 GB".
func FormatByteSize(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}

	v := float64(n)
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d Bytes", n)
	}
	return fmt.Sprintf("%.2f %s", v, byteUnits[unit])
}
