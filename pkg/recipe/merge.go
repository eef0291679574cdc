package recipe

import (
	"sort"
	"strings"
)

// Merge combines the fixed and mutable namespaces of a recipe. The two must be
// disjoint. Every non-reserved component key present at merge time gets empty
// _args/_kwargs companions unless the caller already supplied them.
func Merge(fixed, mutable Components) (Config, error) {
	var overlap []string
	for k := range fixed {
		if _, ok := mutable[k]; ok {
			overlap = append(overlap, k)
		}
	}
	if len(overlap) > 0 {
		sort.Strings(overlap)
		return nil, &ConfigurationError{
			Reason: "fixed and mutable components cannot overlap",
			Keys:   overlap,
		}
	}

	cfg := make(Config, len(fixed)+len(mutable))
	for k, v := range fixed {
		cfg[k] = v
	}
	for k, v := range mutable {
		cfg[k] = v
	}

	// Snapshot keys so companions added below are not normalized themselves.
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	for _, k := range keys {
		if !isComponentKey(k) {
			continue
		}
		if _, ok := cfg[ArgsKey(k)]; !ok {
			cfg[ArgsKey(k)] = Args{}
		}
		if _, ok := cfg[KwargsKey(k)]; !ok {
			cfg[KwargsKey(k)] = Kwargs{}
		}
	}
	return cfg, nil
}

func isComponentKey(k string) bool {
	if _, reserved := reservedKeys[k]; reserved {
		return false
	}
	return !strings.HasSuffix(k, argsSuffix) && !strings.HasSuffix(k, kwargsSuffix)
}
