package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dep2p/go-timingmesh/pkg/types"
)

// errEmptyCommand 空行
var errEmptyCommand = errors.New("empty command")

// parseUpdate 解析一行更新命令
//
// 格式为空白分隔的 key=value，key 取 pos/vel/acc（或全名），例如：
//
//	pos=10 vel=1
//	acceleration=-0.5
func parseUpdate(line string) (types.PartialVector, error) {
	var partial types.PartialVector

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return partial, errEmptyCommand
	}

	for _, field := range fields {
		key, raw, ok := strings.Cut(field, "=")
		if !ok {
			return partial, fmt.Errorf("expected key=value, got %q", field)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return partial, fmt.Errorf("invalid value for %s: %w", key, err)
		}

		switch strings.ToLower(key) {
		case "pos", "position":
			partial.Position = types.Float(value)
		case "vel", "velocity":
			partial.Velocity = types.Float(value)
		case "acc", "acceleration":
			partial.Acceleration = types.Float(value)
		default:
			return partial, fmt.Errorf("unknown field %q", key)
		}
	}
	return partial, nil
}
