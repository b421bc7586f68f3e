package cache

import (
	"strconv"
	"strings"
)

// parseUsedMemory extracts used_memory from a Redis INFO memory section
// response. Returns 0 if the field is absent or malformed.
func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if !strings.HasPrefix(line, "used_memory:") {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimPrefix(line, "used_memory:"), 10, 64)
		if err != nil {
			return 0
		}
		return v
	}
	return 0
}
