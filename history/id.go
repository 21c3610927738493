package history

import (
	"github.com/bwmarrin/snowflake"

	"github.com/ceyewan/dealflow/xerrors"
)

// newIDGenerator 雪花 ID，与分表中间件的 PKSnowflake 使用同一算法
func newIDGenerator(node int64) (func() int64, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, xerrors.Wrapf(err, "snowflake node %d", node)
	}
	return func() int64 { return n.Generate().Int64() }, nil
}
