package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // 无 CGO 版本驱动

	"github.com/rushteam/embedrec/core"
)

// SQLiteCatalog 是基于 SQLite 的目录/评价/偏好存储。
// 向量以 JSON 文本保存在 embedding_vector / average_embedding_vector 列，未计算时为 NULL。
type SQLiteCatalog struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS category (
	id               INTEGER PRIMARY KEY,
	name             TEXT NOT NULL,
	embedding_vector TEXT
);
CREATE TABLE IF NOT EXISTS item (
	id                       INTEGER PRIMARY KEY,
	name                     TEXT NOT NULL DEFAULT '',
	average_embedding_vector TEXT
);
CREATE TABLE IF NOT EXISTS item_category (
	item_id     INTEGER NOT NULL,
	category_id INTEGER NOT NULL,
	PRIMARY KEY (item_id, category_id)
);
CREATE TABLE IF NOT EXISTS review (
	member_id INTEGER NOT NULL,
	item_id   INTEGER NOT NULL,
	status    TEXT NOT NULL,
	PRIMARY KEY (member_id, item_id)
);
CREATE TABLE IF NOT EXISTS member_category (
	member_id   INTEGER NOT NULL,
	category_id INTEGER NOT NULL,
	PRIMARY KEY (member_id, category_id)
);`

// NewSQLiteCatalog 打开数据库并建表。path 可为 ":memory:"。
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 避免 SQLite 并发写入冲突；内存库也依赖单连接保持数据
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteCatalog{db: db}, nil
}

func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

// UpsertCategory 写入类目名称（不影响已有向量）。
func (s *SQLiteCatalog) UpsertCategory(ctx context.Context, id int64, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO category (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`, id, name)
	return err
}

// UpsertItem 写入物品并替换其类目关联（不影响已有平均向量）。
func (s *SQLiteCatalog) UpsertItem(ctx context.Context, id int64, name string, categoryIDs ...int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO item (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`, id, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM item_category WHERE item_id = ?`, id); err != nil {
		return err
	}
	for _, cid := range categoryIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO item_category (item_id, category_id) VALUES (?, ?)`, id, cid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PutJudgment 写入（或覆盖）用户对物品的评价。
func (s *SQLiteCatalog) PutJudgment(ctx context.Context, j core.Judgment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO review (member_id, item_id, status) VALUES (?, ?, ?)
		 ON CONFLICT(member_id, item_id) DO UPDATE SET status = excluded.status`,
		j.UserID, j.ItemID, string(j.Status))
	return err
}

// AddPreference 添加用户偏好类目。
func (s *SQLiteCatalog) AddPreference(ctx context.Context, userID, categoryID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO member_category (member_id, category_id) VALUES (?, ?)`, userID, categoryID)
	return err
}

func (s *SQLiteCatalog) GetCategory(ctx context.Context, id int64) (*core.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, embedding_vector FROM category WHERE id = ?`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrStoreNotFound
	}
	return c, err
}

func (s *SQLiteCatalog) ListCategories(ctx context.Context) ([]*core.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, embedding_vector FROM category ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteCatalog) SaveCategoryEmbedding(ctx context.Context, id int64, embedding []byte) error {
	return s.updateVector(ctx, `UPDATE category SET embedding_vector = ? WHERE id = ?`, id, embedding)
}

func (s *SQLiteCatalog) GetItem(ctx context.Context, id int64) (*core.CatalogItem, error) {
	items, err := s.queryItems(ctx,
		`SELECT id, name, average_embedding_vector FROM item WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, core.ErrStoreNotFound
	}
	return items[0], nil
}

func (s *SQLiteCatalog) ItemsInRange(ctx context.Context, startID int64, limit int) ([]*core.CatalogItem, error) {
	return s.queryItems(ctx,
		`SELECT id, name, average_embedding_vector FROM item WHERE id >= ? ORDER BY id LIMIT ?`,
		startID, sqlLimit(limit))
}

func (s *SQLiteCatalog) SampleItems(ctx context.Context, limit int) ([]*core.CatalogItem, error) {
	return s.queryItems(ctx,
		`SELECT id, name, average_embedding_vector FROM item
		 WHERE average_embedding_vector IS NOT NULL ORDER BY id LIMIT ?`,
		sqlLimit(limit))
}

func (s *SQLiteCatalog) SaveItemEmbedding(ctx context.Context, id int64, embedding []byte) error {
	return s.updateVector(ctx, `UPDATE item SET average_embedding_vector = ? WHERE id = ?`, id, embedding)
}

func (s *SQLiteCatalog) JudgmentsByUser(ctx context.Context, userID int64) ([]core.Judgment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id, item_id, status FROM review WHERE member_id = ? ORDER BY item_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Judgment
	for rows.Next() {
		var (
			j      core.Judgment
			status string
		)
		if err := rows.Scan(&j.UserID, &j.ItemID, &status); err != nil {
			return nil, err
		}
		j.Status = core.ReviewStatus(status)
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLiteCatalog) PreferredCategories(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category_id FROM member_category WHERE member_id = ? ORDER BY category_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteCatalog) updateVector(ctx context.Context, query string, id int64, embedding []byte) error {
	res, err := s.db.ExecContext(ctx, query, string(embedding), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrStoreNotFound
	}
	return nil
}

// queryItems 读取物品行，再一次性补全这些物品的类目关联。
func (s *SQLiteCatalog) queryItems(ctx context.Context, query string, args ...any) ([]*core.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var items []*core.CatalogItem
	byID := make(map[int64]*core.CatalogItem)
	for rows.Next() {
		var (
			it  core.CatalogItem
			vec sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.Name, &vec); err != nil {
			rows.Close()
			return nil, err
		}
		if vec.Valid && vec.String != "" {
			it.AverageEmbedding = []byte(vec.String)
		}
		items = append(items, &it)
		byID[it.ID] = &it
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(items) == 0 {
		return items, nil
	}

	// 结果按 ID 升序，关联表只需扫描 [first, last] 区间
	crows, err := s.db.QueryContext(ctx,
		`SELECT item_id, category_id FROM item_category
		 WHERE item_id BETWEEN ? AND ? ORDER BY item_id, category_id`,
		items[0].ID, items[len(items)-1].ID)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var itemID, categoryID int64
		if err := crows.Scan(&itemID, &categoryID); err != nil {
			return nil, err
		}
		if it, ok := byID[itemID]; ok {
			it.CategoryIDs = append(it.CategoryIDs, categoryID)
		}
	}
	return items, crows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*core.Category, error) {
	var (
		c   core.Category
		vec sql.NullString
	)
	if err := row.Scan(&c.ID, &c.Name, &vec); err != nil {
		return nil, err
	}
	if vec.Valid && vec.String != "" {
		c.Embedding = []byte(vec.String)
	}
	return &c, nil
}

// sqlLimit 将非正数转换为 SQLite 的“无限制”。
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

var (
	_ core.CatalogStore    = (*SQLiteCatalog)(nil)
	_ core.ReviewStore     = (*SQLiteCatalog)(nil)
	_ core.PreferenceStore = (*SQLiteCatalog)(nil)
)
