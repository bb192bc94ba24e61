package subscription

import (
	"slices"
	"strings"

	"quotehub.com/internal/market/model"
)

// kindSet 位集合：ticker | trade | candle
type kindSet uint8

const (
	bitTicker kindSet = 1 << iota
	bitTrade
	bitCandle
)

var allKinds = []struct {
	bit  kindSet
	kind model.StreamKind
}{
	{bitTicker, model.KindTicker},
	{bitTrade, model.KindTrade},
	{bitCandle, model.KindCandle},
}

func kindOf(k model.StreamKind) kindSet {
	for _, a := range allKinds {
		if a.kind == k {
			return a.bit
		}
	}
	return 0
}

func kindsOf(ks []model.StreamKind) kindSet {
	var s kindSet
	for _, k := range ks {
		s |= kindOf(k)
	}
	return s
}

func (s kindSet) has(k kindSet) bool { return k != 0 && s&k == k }

func (s kindSet) list() []model.StreamKind {
	out := make([]model.StreamKind, 0, 3)
	for _, a := range allKinds {
		if s&a.bit != 0 {
			out = append(out, a.kind)
		}
	}
	return out
}

func (s kindSet) String() string {
	ks := s.list()
	parts := make([]string, len(ks))
	for i, k := range ks {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

func sortedKindSets[V any](m map[kindSet]V) []kindSet {
	out := make([]kindSet, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func keys(s map[string]struct{}) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func union(s map[string]struct{}, extra ...string) []string {
	out := keys(s)
	for _, e := range extra {
		if _, ok := s[e]; !ok {
			out = append(out, e)
		}
	}
	return out
}

func compareStrings(a, b string) int { return strings.Compare(a, b) }
