package core

import (
	"sort"
	"strings"
)

// IDSet 是作品 ID 集合，用于排除列表、已看列表等。
type IDSet map[ExternalID]struct{}

func NewIDSet(ids ...ExternalID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id ExternalID) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id ExternalID) {
	s[id] = struct{}{}
}

// Clone 返回独立副本；nil 集合返回空集合。
func (s IDSet) Clone() IDSet {
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Sorted 返回升序 ID 列表（外部接口参数需要稳定顺序）。
func (s IDSet) Sorted() []ExternalID {
	out := make([]ExternalID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ServiceFilter 是用户订阅的服务集合。空集合表示不按服务过滤。
// 名称按小写、去空白归一化后比较。
type ServiceFilter map[string]struct{}

func NewServiceFilter(names ...string) ServiceFilter {
	f := make(ServiceFilter, len(names))
	for _, n := range names {
		if k := normalizeService(n); k != "" {
			f[k] = struct{}{}
		}
	}
	return f
}

func (f ServiceFilter) Empty() bool { return len(f) == 0 }

// Matches 判断服务集合中是否有任何一个属于订阅。
func (f ServiceFilter) Matches(services ServiceSet) bool {
	for name := range services {
		if _, ok := f[normalizeService(name)]; ok {
			return true
		}
	}
	return false
}

func normalizeService(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
