package core

import "context"

// Category 是目录中的类目，Embedding 为已序列化的向量（JSON 数组），未获取前为 nil。
type Category struct {
	ID        int64
	Name      string
	Embedding []byte
}

// HasEmbedding 判断类目是否已保存向量。
func (c *Category) HasEmbedding() bool {
	return c != nil && len(c.Embedding) > 0
}

// CatalogItem 是目录中的物品（例如一款游戏）。
// AverageEmbedding 是其类目向量的逐维平均值，未计算前为 nil。
type CatalogItem struct {
	ID               int64
	Name             string
	CategoryIDs      []int64
	AverageEmbedding []byte
}

// HasEmbedding 判断物品是否已计算平均向量。
func (it *CatalogItem) HasEmbedding() bool {
	return it != nil && len(it.AverageEmbedding) > 0
}

// CatalogStore 是目录存储（外部协作方）的领域接口。
// 本模块只读取类目名、物品-类目关联，并写回类目向量与物品平均向量。
type CatalogStore interface {
	// GetCategory 读取类目；不存在时返回 ErrStoreNotFound
	GetCategory(ctx context.Context, id int64) (*Category, error)

	// ListCategories 返回全部类目（按 ID 升序）
	ListCategories(ctx context.Context) ([]*Category, error)

	// SaveCategoryEmbedding 写入类目向量
	SaveCategoryEmbedding(ctx context.Context, id int64, embedding []byte) error

	// GetItem 读取物品及其类目；不存在时返回 ErrStoreNotFound
	GetItem(ctx context.Context, id int64) (*CatalogItem, error)

	// ItemsInRange 返回 ID >= startID 的物品，按 ID 升序，最多 limit 个
	ItemsInRange(ctx context.Context, startID int64, limit int) ([]*CatalogItem, error)

	// SampleItems 返回已计算平均向量的物品，按 ID 升序，最多 limit 个（候选池）
	SampleItems(ctx context.Context, limit int) ([]*CatalogItem, error)

	// SaveItemEmbedding 写入物品平均向量
	SaveItemEmbedding(ctx context.Context, id int64, embedding []byte) error
}

// ReviewStatus 是用户对物品评价的类别。
type ReviewStatus string

const (
	ReviewPerfect ReviewStatus = "PERFECT"
	ReviewGood    ReviewStatus = "GOOD"
	ReviewNormal  ReviewStatus = "NORMAL"
	ReviewBad     ReviewStatus = "BAD"
)

// Weight 返回评价在用户画像中的权重：
//
//	PERFECT 1.0 / GOOD 0.7 / BAD 0.3 / 其他 0.5
func (s ReviewStatus) Weight() float64 {
	switch s {
	case ReviewPerfect:
		return 1.0
	case ReviewGood:
		return 0.7
	case ReviewBad:
		return 0.3
	default:
		return 0.5
	}
}

// Judgment 是用户对某个物品的一次显式评价。
type Judgment struct {
	UserID int64
	ItemID int64
	Status ReviewStatus
}

// ReviewStore 是评价存储（外部协作方）的领域接口。
type ReviewStore interface {
	// JudgmentsByUser 返回用户的全部评价
	JudgmentsByUser(ctx context.Context, userID int64) ([]Judgment, error)
}

// PreferenceStore 是用户偏好类目存储（外部协作方）的领域接口。
type PreferenceStore interface {
	// PreferredCategories 返回用户选择的偏好类目 ID
	PreferredCategories(ctx context.Context, userID int64) ([]int64, error)
}

// Embedder 将文本转换为向量（外部文本向量 API）。
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float64, error)
}
