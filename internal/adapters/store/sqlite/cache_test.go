package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"custody-desk/internal/domain/model"

	_ "modernc.org/sqlite"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "custody_test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	m := NewMigrator(db)
	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewCache(db)
}

func sampleCase() model.Case {
	return model.Case{
		ID:     "case_1",
		Number: "BJ-2026-001",
		Title:  "测试案件",
		Status: model.CaseOpen,
		Persons: []model.Person{
			{
				ID:     "person_1",
				Name:   "李某",
				Status: model.PersonSuspect,
				Evidence: []model.Evidence{
					{ID: "evd_1", Number: "EV-001", Category: model.DeviceHandphone},
				},
			},
		},
	}
}

func TestCaseSnapshotRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.SaveCaseSnapshot(ctx, sampleCase()); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	got, err := c.GetCaseSnapshot(ctx, "case_1")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if got == nil || got.Title != "测试案件" || len(got.Persons) != 1 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}
	if got.Persons[0].Evidence[0].Number != "EV-001" {
		t.Fatalf("nested evidence lost: %+v", got.Persons[0])
	}

	// upsert：同案再存覆盖旧载荷。
	updated := sampleCase()
	updated.Title = "改名后的案件"
	if err := c.SaveCaseSnapshot(ctx, updated); err != nil {
		t.Fatalf("save snapshot again: %v", err)
	}
	got, err = c.GetCaseSnapshot(ctx, "case_1")
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if got.Title != "改名后的案件" {
		t.Fatalf("snapshot not overwritten: %q", got.Title)
	}

	infos, err := c.ListCaseSnapshots(ctx)
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(infos) != 1 || infos[0].CaseID != "case_1" || infos[0].CaseNumber != "BJ-2026-001" {
		t.Fatalf("unexpected snapshot index: %+v", infos)
	}
}

func TestGetCaseSnapshot_NotFound(t *testing.T) {
	c := newTestCache(t)

	got, err := c.GetCaseSnapshot(context.Background(), "case_missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing snapshot, got %+v", got)
	}
}

func TestDeleteCaseSnapshot(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.SaveCaseSnapshot(ctx, sampleCase()); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}
	if err := c.DeleteCaseSnapshot(ctx, "case_1"); err != nil {
		t.Fatalf("delete snapshot: %v", err)
	}
	got, err := c.GetCaseSnapshot(ctx, "case_1")
	if err != nil || got != nil {
		t.Fatalf("snapshot not deleted: got=%+v err=%v", got, err)
	}
}

func TestAppendSyncAudit_BuildsChain(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	ops := []string{"case_create", "person_create", "stage_acquisition"}
	for _, op := range ops {
		if err := c.AppendSyncAudit(ctx, "case_1", "entity_1", op, "success", "张警官", map[string]any{"op": op}); err != nil {
			t.Fatalf("append audit: %v", err)
		}
	}
	// 其它案件的留痕不混入。
	if err := c.AppendSyncAudit(ctx, "case_2", "", "case_create", "success", "张警官", nil); err != nil {
		t.Fatalf("append audit: %v", err)
	}

	audits, err := c.ListSyncAudits(ctx, "case_1", 0)
	if err != nil {
		t.Fatalf("list audits: %v", err)
	}
	if len(audits) != 3 {
		t.Fatalf("expected 3 audits, got %d", len(audits))
	}

	if audits[0].ChainPrevHash != "" {
		t.Fatalf("first entry must anchor on empty prev hash: %+v", audits[0])
	}
	for i := 1; i < len(audits); i++ {
		if audits[i].ChainPrevHash != audits[i-1].ChainHash {
			t.Fatalf("chain broken at %d: prev=%q want=%q", i, audits[i].ChainPrevHash, audits[i-1].ChainHash)
		}
	}
	for i, a := range audits {
		if a.EventID == "" || a.ChainHash == "" {
			t.Fatalf("entry %d missing identity: %+v", i, a)
		}
		if a.Operation != ops[i] {
			t.Fatalf("unexpected order at %d: %q", i, a.Operation)
		}
	}
}

func TestSaveExport(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	id1, err := c.SaveExport(ctx, "rec_1", "/tmp/a.docx", "abc123", 1024)
	if err != nil {
		t.Fatalf("save export: %v", err)
	}
	id2, err := c.SaveExport(ctx, "rec_1", "/tmp/b.docx", "def456", 2048)
	if err != nil {
		t.Fatalf("save export: %v", err)
	}
	if id1 == "" || id1 == id2 {
		t.Fatalf("export ids must be distinct: %q %q", id1, id2)
	}

	items, err := c.ListExportsBySubject(ctx, "rec_1")
	if err != nil {
		t.Fatalf("list exports: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 exports, got %d", len(items))
	}

	empty, err := c.ListExportsBySubject(ctx, "rec_missing")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %+v err=%v", empty, err)
	}
}

func TestSchemaMeta(t *testing.T) {
	c := newTestCache(t)

	v, err := c.GetSchemaMetaValue(context.Background(), "schema_version")
	if err != nil {
		t.Fatalf("get schema meta: %v", err)
	}
	if v != "1" {
		t.Fatalf("expected schema_version=1, got %q", v)
	}
}
