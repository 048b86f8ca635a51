package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/munin-ai/munin/pkg/models"
)

// MemoryRepository stores long-term memories: categorized facts the agent
// injects into its system prompt.
type MemoryRepository struct {
	store *Store
}

// Add inserts a memory. Unknown categories fall back to "general".
func (r *MemoryRepository) Add(ctx context.Context, content string, category models.MemoryCategory, source, userID string) (int64, error) {
	if !models.ValidMemoryCategory(category) {
		category = models.MemoryGeneral
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()
	result, err := r.store.db.ExecContext(ctx,
		`INSERT INTO memories (created_at, updated_at, category, content, source, user_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		now, now, string(category), content, nullable(source), nullable(userID),
	)
	if err != nil {
		return 0, fmt.Errorf("store: add memory: %w", err)
	}
	return result.LastInsertId()
}

// GetAll returns every memory, oldest first.
func (r *MemoryRepository) GetAll(ctx context.Context) ([]models.Memory, error) {
	return r.queryMemories(ctx,
		`SELECT id, created_at, updated_at, category, content, source, user_id
		 FROM memories ORDER BY id`)
}

// GetByCategory returns memories in one category, oldest first.
func (r *MemoryRepository) GetByCategory(ctx context.Context, category models.MemoryCategory) ([]models.Memory, error) {
	return r.queryMemories(ctx,
		`SELECT id, created_at, updated_at, category, content, source, user_id
		 FROM memories WHERE category = ? ORDER BY id`,
		string(category))
}

// Search returns memories whose content contains the substring,
// case-insensitively, oldest first.
func (r *MemoryRepository) Search(ctx context.Context, substring string) ([]models.Memory, error) {
	return r.queryMemories(ctx,
		`SELECT id, created_at, updated_at, category, content, source, user_id
		 FROM memories WHERE content LIKE ? ORDER BY id`,
		"%"+substring+"%")
}

// Delete removes one memory and reports whether it existed.
func (r *MemoryRepository) Delete(ctx context.Context, id int64) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	result, err := r.store.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete memory: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// GetMemorySummary renders every memory as a category-grouped text block
// for inclusion in a system prompt. Empty string when nothing is stored.
func (r *MemoryRepository) GetMemorySummary(ctx context.Context) (string, error) {
	memories, err := r.GetAll(ctx)
	if err != nil {
		return "", err
	}
	if len(memories) == 0 {
		return "", nil
	}

	grouped := make(map[models.MemoryCategory][]models.Memory)
	for _, m := range memories {
		grouped[m.Category] = append(grouped[m.Category], m)
	}

	var b strings.Builder
	for _, category := range models.MemoryCategories {
		entries := grouped[category]
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", category)
		for _, m := range entries {
			fmt.Fprintf(&b, "- [%d] %s\n", m.ID, m.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *MemoryRepository) queryMemories(ctx context.Context, query string, args ...any) ([]models.Memory, error) {
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query memories: %w", err)
	}
	defer rows.Close()

	var memories []models.Memory
	for rows.Next() {
		var (
			m      models.Memory
			source sql.NullString
			userID sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt, &m.Category, &m.Content, &source, &userID); err != nil {
			return nil, fmt.Errorf("store: scan memory: %w", err)
		}
		m.Source = source.String
		m.UserID = userID.String
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate memories: %w", err)
	}
	return memories, nil
}
