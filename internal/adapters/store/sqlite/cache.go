package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"custody-desk/internal/domain/model"
	"custody-desk/internal/platform/hash"
	"custody-desk/internal/platform/id"
)

// Cache 封装本地快照库的读写。
// 只写入“远端已确认”的数据：同步层在每次成功同步后把权威案件子树固化到这里，
// 并为每次同步操作追加一条链式 hash 留痕，便于事后校验快照没有被改动。
type Cache struct {
	db *sql.DB
}

func NewCache(db *sql.DB) *Cache {
	return &Cache{db: db}
}

// SaveCaseSnapshot 固化一份案件子树快照（整树 JSON）。
func (c *Cache) SaveCaseSnapshot(ctx context.Context, cs model.Case) error {
	raw, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal case snapshot: %w", err)
	}

	now := time.Now().Unix()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO case_snapshots(case_id, case_number, title, status, payload_json, synced_at, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET
			case_number=excluded.case_number,
			title=excluded.title,
			status=excluded.status,
			payload_json=excluded.payload_json,
			synced_at=excluded.synced_at,
			updated_at=excluded.updated_at
	`, cs.ID, nullIfEmpty(cs.Number), cs.Title, string(cs.Status), string(raw), now, now, now)
	if err != nil {
		return fmt.Errorf("upsert case snapshot: %w", err)
	}
	return nil
}

// GetCaseSnapshot 按案件 ID 读取快照；没有返回 nil。
func (c *Cache) GetCaseSnapshot(ctx context.Context, caseID string) (*model.Case, error) {
	var raw string
	err := c.db.QueryRowContext(ctx, `
		SELECT payload_json
		FROM case_snapshots
		WHERE case_id = ?
		LIMIT 1
	`, caseID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query case snapshot: %w", err)
	}

	var out model.Case
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("unmarshal case snapshot %s: %w", caseID, err)
	}
	return &out, nil
}

// DeleteCaseSnapshot 删除案件快照（远端确认案件不存在时的对齐动作）。
func (c *Cache) DeleteCaseSnapshot(ctx context.Context, caseID string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM case_snapshots WHERE case_id = ?`, caseID); err != nil {
		return fmt.Errorf("delete case snapshot: %w", err)
	}
	return nil
}

// SnapshotInfo 是快照索引行（列表页用，不含整树 JSON）。
type SnapshotInfo struct {
	CaseID     string `json:"case_id"`
	CaseNumber string `json:"case_number,omitempty"`
	Title      string `json:"title,omitempty"`
	Status     string `json:"status"`
	SyncedAt   int64  `json:"synced_at"`
}

// ListCaseSnapshots 返回全部快照索引，按同步时间倒序。
func (c *Cache) ListCaseSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT case_id, COALESCE(case_number, ''), COALESCE(title, ''), status, synced_at
		FROM case_snapshots
		ORDER BY synced_at DESC, case_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query case snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var item SnapshotInfo
		if err := rows.Scan(&item.CaseID, &item.CaseNumber, &item.Title, &item.Status, &item.SyncedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot info: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot infos: %w", err)
	}
	if out == nil {
		out = []SnapshotInfo{}
	}
	return out, nil
}

// SyncAudit 是一条同步留痕（sync_audit 表）。
type SyncAudit struct {
	EventID       string          `json:"event_id"`
	CaseID        string          `json:"case_id"`
	EntityID      string          `json:"entity_id,omitempty"`
	Operation     string          `json:"operation"`
	Status        string          `json:"status"`
	Actor         string          `json:"actor,omitempty"`
	DetailJSON    json.RawMessage `json:"detail_json,omitempty"`
	OccurredAt    int64           `json:"occurred_at"`
	ChainPrevHash string          `json:"chain_prev_hash,omitempty"`
	ChainHash     string          `json:"chain_hash"`
}

// AppendSyncAudit 写入同步留痕，并生成链式 hash 以便后续校验完整性。
// hash 公式必须与 auditverify.VerifyChain 保持一致。
func (c *Cache) AppendSyncAudit(ctx context.Context, caseID, entityID, operation, status, actor string, detail any) error {
	detailJSON := []byte("{}")
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err == nil {
			detailJSON = raw
		}
	}

	prev := ""
	err := c.db.QueryRowContext(ctx, `
		SELECT chain_hash
		FROM sync_audit
		WHERE case_id = ?
		ORDER BY rowid DESC
		LIMIT 1
	`, caseID).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("query previous chain hash: %w", err)
	}

	now := time.Now().Unix()
	eventID := id.New("evt")
	chain := hash.Text(prev, caseID, operation, status, fmt.Sprintf("%d", now), string(detailJSON))

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO sync_audit(
			event_id, case_id, entity_id, operation, status,
			actor, detail_json, occurred_at, chain_prev_hash, chain_hash
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, eventID, caseID, nullIfEmpty(entityID), operation, status, nullIfEmpty(actor), string(detailJSON), now, nullIfEmpty(prev), chain)
	if err != nil {
		return fmt.Errorf("insert sync audit: %w", err)
	}
	return nil
}

// ListSyncAudits 返回案件同步留痕（按写入顺序升序，校验链用）。
func (c *Cache) ListSyncAudits(ctx context.Context, caseID string, limit int) ([]SyncAudit, error) {
	if limit <= 0 {
		limit = 500
	}
	if limit > 5000 {
		limit = 5000
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT
			event_id, case_id, COALESCE(entity_id, ''), operation, status,
			COALESCE(actor, ''), COALESCE(detail_json, '{}'), occurred_at,
			COALESCE(chain_prev_hash, ''), chain_hash
		FROM sync_audit
		WHERE case_id = ?
		ORDER BY rowid ASC
		LIMIT ?
	`, caseID, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync audits: %w", err)
	}
	defer rows.Close()

	var out []SyncAudit
	for rows.Next() {
		var item SyncAudit
		var detail string
		if err := rows.Scan(
			&item.EventID,
			&item.CaseID,
			&item.EntityID,
			&item.Operation,
			&item.Status,
			&item.Actor,
			&detail,
			&item.OccurredAt,
			&item.ChainPrevHash,
			&item.ChainHash,
		); err != nil {
			return nil, fmt.Errorf("scan sync audit: %w", err)
		}
		item.DetailJSON = json.RawMessage(detail)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync audits: %w", err)
	}
	if out == nil {
		out = []SyncAudit{}
	}
	return out, nil
}

// ExportInfo 是导出文书的登记行（exports 表）。
type ExportInfo struct {
	ExportID   string `json:"export_id"`
	SubjectID  string `json:"subject_id"`
	FilePath   string `json:"file_path"`
	SHA256     string `json:"sha256"`
	SizeBytes  int64  `json:"size_bytes"`
	ExportedAt int64  `json:"exported_at"`
}

// SaveExport 登记一次文书导出产物，返回登记 ID。
func (c *Cache) SaveExport(ctx context.Context, subjectID, filePath, sha256 string, sizeBytes int64) (string, error) {
	exportID := id.New("export")
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO exports(export_id, subject_id, file_path, sha256, size_bytes, exported_at)
		VALUES(?, ?, ?, ?, ?, ?)
	`, exportID, subjectID, filePath, sha256, sizeBytes, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("insert export: %w", err)
	}
	return exportID, nil
}

// ListExportsBySubject 返回某记录的导出历史，按时间倒序。
func (c *Cache) ListExportsBySubject(ctx context.Context, subjectID string) ([]ExportInfo, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT export_id, subject_id, file_path, sha256, size_bytes, exported_at
		FROM exports
		WHERE subject_id = ?
		ORDER BY exported_at DESC, export_id DESC
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	var out []ExportInfo
	for rows.Next() {
		var item ExportInfo
		if err := rows.Scan(&item.ExportID, &item.SubjectID, &item.FilePath, &item.SHA256, &item.SizeBytes, &item.ExportedAt); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exports: %w", err)
	}
	if out == nil {
		out = []ExportInfo{}
	}
	return out, nil
}

// GetSchemaMetaValue 查询 schema_meta 表指定 key 的 value。
func (c *Cache) GetSchemaMetaValue(ctx context.Context, key string) (string, error) {
	var v string
	err := c.db.QueryRowContext(ctx, `
		SELECT value
		FROM schema_meta
		WHERE key = ?
		LIMIT 1
	`, key).Scan(&v)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("query schema_meta %s: %w", key, err)
	}
	return v, nil
}

// 空字符串按 NULL 写入，避免无意义空值污染查询条件。
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
