package admin

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// humanizeSizes rewrites the values of size keys ("key\tvalue" and
// "key: value" lines) as IEC byte sizes. Other lines are kept as they are.
func humanizeSizes(out string) string {
	lines := strings.SplitAfter(out, "\n")
	for i, line := range lines {
		body := strings.TrimSuffix(line, "\n")

		key, value, sep := "", "", ""
		if k, v, ok := strings.Cut(body, "\t"); ok {
			key, value, sep = k, v, "\t"
		} else if k, v, ok := strings.Cut(body, ": "); ok {
			key, value, sep = k, v, ": "
		} else {
			continue
		}

		if !strings.HasSuffix(key, "_size") {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		if err != nil {
			continue
		}
		lines[i] = key + sep + humanize.IBytes(n) + line[len(body):]
	}
	return strings.Join(lines, "")
}
