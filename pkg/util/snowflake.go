package util

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node     *snowflake.Node
	nodeOnce sync.Once
)

// InitSnowflake 初始化雪花算法节点，多实例部署时每个实例的 nodeID 必须不同。
func InitSnowflake(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	node = n
	return nil
}

// NextID 生成全局唯一 ID（封禁事件、审计记录）。
// 未初始化时使用 0 号节点，便于测试直接调用。
func NextID() int64 {
	nodeOnce.Do(func() {
		if node == nil {
			node, _ = snowflake.NewNode(0)
		}
	})
	return node.Generate().Int64()
}
