package hops

import (
	"slices"
	"time"
)

// Entry 参与排序的条目
//
// 对应 [..., hopsInfo, roundTripTime] 元组：Value 为调用方数据，
// RTT 在权威相同时作为决胜条件。
type Entry[T any] struct {
	Value      T
	Descriptor Descriptor
	RTT        time.Duration
}

// Rank 按权威顺序稳定排序（最权威者在前）
//
// 比较中出现一致性违例时，排序仍然完成（违例对视为相等，以 RTT 决胜），
// 并返回遇到的第一个错误。
func Rank[T any](entries []Entry[T]) ([]Entry[T], error) {
	out := slices.Clone(entries)

	var firstErr error
	slices.SortStableFunc(out, func(a, b Entry[T]) int {
		c, err := Compare(a.Descriptor, b.Descriptor)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			c = 0
		}
		if c != 0 {
			return c
		}
		switch {
		case a.RTT < b.RTT:
			return -1
		case a.RTT > b.RTT:
			return 1
		default:
			return 0
		}
	})

	return out, firstErr
}

// Best 返回最权威的条目
func Best[T any](entries []Entry[T]) (Entry[T], bool, error) {
	if len(entries) == 0 {
		var zero Entry[T]
		return zero, false, nil
	}
	ranked, err := Rank(entries)
	return ranked[0], true, err
}
