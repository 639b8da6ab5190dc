package env

import (
	"os"
	"strings"
)

// Merge composes the environment for a child process. Application order:
// the parent OS environment, then extra "K=V" entries (later wins).
// ${VAR} references are expanded against the composed map once, no
// recursion. Malformed entries without '=' or with an empty key are skipped.
func Merge(extra []string) []string {
	m := make(map[string]string)
	fill(m, os.Environ())
	fill(m, extra)

	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	return out
}

func fill(m map[string]string, kvs []string) {
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
}

func expand(s string, m map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for k, v := range m {
		s = strings.ReplaceAll(s, "${"+k+"}", v)
	}
	return s
}
