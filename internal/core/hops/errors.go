package hops

import (
	"errors"
	"fmt"
)

var (
	// ErrConsistency 一致性违例
	//
	// 这是协议/编程错误，不会被重试。
	ErrConsistency = errors.New("hops consistency violation")

	// ErrMissingHops 同源向量均未携带 hop
	ErrMissingHops = fmt.Errorf("%w: every vector sharing an origin must carry at least one hop", ErrConsistency)

	// ErrDuplicateVectors 两个向量的 (origin, hops) 完全相同
	ErrDuplicateVectors = fmt.Errorf("%w: vectors must be unique", ErrConsistency)
)
