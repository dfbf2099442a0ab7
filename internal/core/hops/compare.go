// Package hops 实现权威排序（Hop Comparator）
//
// 网格中没有预先指定的权威节点。每个向量携带 (origin, hops)：
// origin 是其时钟被视为基准的节点的 timeOrigin，hops 是从该节点到
// 向量来源的路径。Compare 在这些描述符上定义全序，各节点据此收敛到
// 同一个逻辑源。
package hops

// Descriptor 权威路径描述符
type Descriptor struct {
	Origin float64
	Hops   []int
}

// Compare 比较两个描述符，返回 -1 表示 a 优先，1 表示 b 优先
//
// 判定表（分支顺序影响收敛，不可简化）：
//  1. origin 不同：origin 小者优先
//  2. origin 相同，dup 为各自 hops 中等于首元素的个数：
//     - dupA != dupB：dup 少者优先
//     - dupA == dupB == 0：ErrMissingHops
//     - dupA == dupB 且 (dupA == 1 或首元素相同)：长度短者优先；
//     长度相同时逐元素比较，完全相同返回 ErrDuplicateVectors，否则相等
//     - 其他：首元素小者优先
func Compare(a, b Descriptor) (int, error) {
	if a.Origin != b.Origin {
		return ascending(a.Origin, b.Origin), nil
	}

	dupA := countDuplicates(a.Hops)
	dupB := countDuplicates(b.Hops)

	if dupA != dupB {
		return ascendingInt(dupA, dupB), nil
	}

	if dupA == 0 {
		return 0, ErrMissingHops
	}

	if dupA == 1 || a.Hops[0] == b.Hops[0] {
		if len(a.Hops) != len(b.Hops) {
			return ascendingInt(len(a.Hops), len(b.Hops)), nil
		}
		if equalHops(a.Hops, b.Hops) {
			return 0, ErrDuplicateVectors
		}
		return 0, nil
	}

	return ascendingInt(a.Hops[0], b.Hops[0]), nil
}

// countDuplicates 统计等于首元素的条目数（空切片为 0）
func countDuplicates(hops []int) int {
	if len(hops) == 0 {
		return 0
	}
	n := 0
	for _, h := range hops {
		if h == hops[0] {
			n++
		}
	}
	return n
}

func equalHops(a, b []int) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func ascending(a, b float64) int {
	if a < b {
		return -1
	}
	return 1
}

func ascendingInt(a, b int) int {
	if a < b {
		return -1
	}
	return 1
}

// ============================================================================
//                              路径构造
// ============================================================================

// Own 本节点作为来源时的路径
func Own(hopID int) []int {
	return []int{hopID}
}

// Extend 在采纳远端路径后追加本节点
//
// 返回新切片，不修改 hops。
func Extend(hops []int, hopID int) []int {
	out := make([]int, 0, len(hops)+1)
	out = append(out, hops...)
	return append(out, hopID)
}
