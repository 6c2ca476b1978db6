package process

import (
	"runtime"
	"sort"
	"strings"
)

// MergeEnv applies layers, in order, on top of base, a list of KEY=VALUE
// entries as returned by os.Environ. A nil value removes the key. Keys of
// base keep their order, keys added by a layer are appended in sorted order.
func MergeEnv(base []string, layers ...map[string]*string) []string {
	var keys []string
	values := make(map[string]string, len(base))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, dup := values[envKey(k)]; !dup {
			keys = append(keys, k)
		}
		values[envKey(k)] = v
	}

	for _, layer := range layers {
		added := make([]string, 0, len(layer))
		for k := range layer {
			added = append(added, k)
		}
		sort.Strings(added)
		for _, k := range added {
			v := layer[k]
			if v == nil {
				delete(values, envKey(k))
				continue
			}
			if _, ok := values[envKey(k)]; !ok {
				keys = append(keys, k)
			}
			values[envKey(k)] = *v
		}
	}

	r := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, k := range keys {
		v, ok := values[envKey(k)]
		if !ok || seen[envKey(k)] {
			continue
		}
		seen[envKey(k)] = true
		r = append(r, k+"="+v)
	}
	return r
}

// envKey folds case on Windows where variable names are case insensitive.
func envKey(k string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(k)
	}
	return k
}
