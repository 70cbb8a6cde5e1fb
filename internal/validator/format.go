package validator

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatSize renders a byte count with binary units and at most two
// decimals: 1536 -> "1.5 KB", 52428800 -> "50 MB".
func FormatSize(n int64) string {
	units := []string{"B", "KB", "MB", "GB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	return fmt.Sprintf("%s %s", s, units[i])
}
