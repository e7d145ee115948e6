package core

// RankConfig 提供排序相关的默认值，节点在配置为零值时回落到这里。
type RankConfig interface {
	// DefaultPoolSize 返回候选池大小
	DefaultPoolSize() int

	// DefaultPageSize 返回默认推荐条数
	DefaultPageSize() int

	// MaxPageSize 返回单次推荐条数上限
	MaxPageSize() int

	// DefaultBoostWeight 返回偏好类目加权系数
	DefaultBoostWeight() float64
}

// DefaultRankConfig 是默认的排序配置实现。
type DefaultRankConfig struct{}

func (c *DefaultRankConfig) DefaultPoolSize() int {
	return 1000
}

func (c *DefaultRankConfig) DefaultPageSize() int {
	return 10
}

func (c *DefaultRankConfig) MaxPageSize() int {
	return 100
}

func (c *DefaultRankConfig) DefaultBoostWeight() float64 {
	return 0.1
}

// DefaultBatchSize 是物品平均向量回填的默认批大小。
const DefaultBatchSize = 100
