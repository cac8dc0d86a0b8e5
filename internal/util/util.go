package util

import (
	"encoding/json"
	"os"
)

// JSONStringify converts any value to a JSON string.
func JSONStringify(val any) string {
	buf, _ := json.Marshal(val)
	return string(buf)
}

// Exists returns true if the filename or directory specified by fn exists.
func Exists(fn string) bool {
	if _, err := os.Stat(fn); os.IsNotExist(err) {
		return false
	}
	return true
}

// SliceContains returns true if the slice contains the value.
func SliceContains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
