package transport

import "os"

// envSnapshot returns the parent process environment as a map, the base
// that Config.Env entries are merged over (spec.md §4.3: "env merges
// over the parent environment").
func envSnapshot() map[string]string {
	entries := os.Environ()
	out := make(map[string]string, len(entries))
	for _, kv := range entries {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				out[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return out
}
