package main

import (
	"fmt"
	"sort"
	"strings"
)

// pairsFlag collects repeated key=value flags, e.g.
//
//	-map issuer_name="Issuer Name" -map ISIN=Isin
type pairsFlag map[string]string

func (p pairsFlag) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + p[k]
	}
	return strings.Join(parts, ",")
}

func (p pairsFlag) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	if _, dup := p[key]; dup {
		return fmt.Errorf("%q given twice", key)
	}
	p[key] = strings.TrimSpace(value)
	return nil
}

// mapOrNil returns nil for an empty flag so the mapper falls back to
// automatic matching.
func (p pairsFlag) mapOrNil() map[string]string {
	if len(p) == 0 {
		return nil
	}
	return map[string]string(p)
}
