package configutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvString sets *target from the environment variable key when the target
// is still empty.
func EnvString(target *string, key string) {
	if *target != "" {
		return
	}
	if v, ok := os.LookupEnv(key); ok {
		*target = strings.TrimSpace(v)
	}
}

// EnvFloat is EnvString for float settings, a zero target counts as unset.
func EnvFloat(target *float64, key string) error {
	if *target != 0 {
		return nil
	}
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fmt.Errorf("environment variable %s: %w", key, err)
	}
	*target = parsed
	return nil
}
