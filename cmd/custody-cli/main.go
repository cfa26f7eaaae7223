package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"custody-desk/internal/adapters/remote"
	sqliteadapter "custody-desk/internal/adapters/store/sqlite"
	"custody-desk/internal/app"
	"custody-desk/internal/platform/logx"
	"custody-desk/internal/services/archive"
	"custody-desk/internal/services/auditverify"
	"custody-desk/internal/services/export"
	"custody-desk/internal/services/sync"
	"custody-desk/internal/store"

	_ "modernc.org/sqlite"
)

// CLI 入口。所有子命令错误都统一输出到 stderr 并返回非 0 状态码。
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run 是一级命令路由：migrate / cases / verify / export / archive。
func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runMigrate(ctx, args[1:])
	case "cases":
		return runCases(ctx, args[1:])
	case "verify":
		return runVerify(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "archive":
		return runArchive(ctx, args[1:])
	case "version":
		fmt.Printf("custody-cli %s (commit=%s build_time=%s)\n", app.Version, app.Commit, app.BuildTime)
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// openCache 打开本地快照库并确保迁移到位。
func openCache(ctx context.Context, dbPath string) (*sql.DB, *sqliteadapter.Cache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	m := sqliteadapter.NewMigrator(db)
	if err := m.Up(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return db, sqliteadapter.NewCache(db), nil
}

// runMigrate 执行 SQLite 迁移，确保本地快照库结构完整。
func runMigrate(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, _, err := openCache(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Printf("migrations applied successfully: db=%s\n", *dbPath)
	return nil
}

// runCases 是二级命令路由：cases pull / list / show / rows。
func runCases(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printCasesUsage()
		return nil
	}

	switch args[0] {
	case "pull":
		return runCasesPull(ctx, args[1:])
	case "list":
		return runCasesList(ctx, args[1:])
	case "show":
		return runCasesShow(ctx, args[1:])
	case "rows":
		return runCasesRows(ctx, args[1:])
	default:
		printCasesUsage()
		return fmt.Errorf("unknown cases command: %s", args[0])
	}
}

// runCasesPull 从远端拉取案件清单并逐案刷新子树，落到本地快照库。
func runCasesPull(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cases pull", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (yaml)")
	dbPath := fs.String("db", "", "sqlite database path (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*dbPath) != "" {
		cfg.DBPath = *dbPath
	}

	logger, err := logx.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, cache, err := openCache(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	graph := store.NewGraph()
	client := remote.NewClient(cfg.ServerBaseURL, cfg.RequestTimeout.Std(), logger)
	svc := sync.NewService(graph, client, cache, logger, cfg.Investigator)

	n, err := svc.LoadCases(ctx)
	if err != nil {
		return err
	}
	for _, c := range graph.Cases() {
		if err := svc.RefreshCase(ctx, c.ID); err != nil {
			fmt.Fprintf(os.Stderr, "warn: refresh case %s: %v\n", c.ID, err)
		}
	}

	fmt.Printf("pulled %d cases: db=%s\n", n, cfg.DBPath)
	return nil
}

// runCasesList 列出本地快照库中的案件摘要。
func runCasesList(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("cases list", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	asJSON := fs.Bool("json", false, "print as json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, cache, err := openCache(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	items, err := cache.ListCaseSnapshots(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(items)
	}

	fmt.Printf("case_count=%d\n", len(items))
	for _, it := range items {
		fmt.Printf("case_id=%s number=%s status=%s title=%s synced_at=%d\n",
			it.CaseID, it.CaseNumber, it.Status, it.Title, it.SyncedAt)
	}
	return nil
}

// runCasesShow 打印单个案件的完整子树快照。
func runCasesShow(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("cases show", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	caseID := fs.String("case-id", "", "case id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*caseID) == "" {
		return fmt.Errorf("--case-id is required")
	}

	db, cache, err := openCache(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	cs, err := cache.GetCaseSnapshot(ctx, strings.TrimSpace(*caseID))
	if err != nil {
		return err
	}
	if cs == nil {
		return fmt.Errorf("case not found: %s", *caseID)
	}
	return printJSON(cs)
}

// runCasesRows 基于快照重建证物总览的扁平投影，适合 UI 列表页。
func runCasesRows(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("cases rows", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	asJSON := fs.Bool("json", true, "print as json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, cache, err := openCache(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	graph := store.NewGraph()
	infos, err := cache.ListCaseSnapshots(ctx)
	if err != nil {
		return err
	}
	for i := len(infos) - 1; i >= 0; i-- {
		cs, err := cache.GetCaseSnapshot(ctx, infos[i].CaseID)
		if err != nil {
			return err
		}
		if cs != nil {
			graph.ReplaceCase(*cs)
		}
	}

	rows := graph.EvidenceRows()
	if *asJSON {
		return printJSON(rows)
	}
	for _, r := range rows {
		fmt.Printf("evidence_id=%s number=%s case=%s person=%s category=%s\n",
			r.EvidenceID, r.EvidenceNumber, r.CaseTitle, r.PersonName, r.Category)
	}
	return nil
}

// runVerify 是二级命令路由，目前支持 verify audit。
func runVerify(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printVerifyUsage()
		return nil
	}

	switch args[0] {
	case "audit":
		return runVerifyAudit(ctx, args[1:])
	default:
		printVerifyUsage()
		return fmt.Errorf("unknown verify command: %s", args[0])
	}
}

// runVerifyAudit 校验某案件同步留痕的哈希链完整性。
func runVerifyAudit(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("verify audit", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	caseID := fs.String("case-id", "", "case id (required)")
	limit := fs.Int("limit", 5000, "max audit entries to verify")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*caseID) == "" {
		return fmt.Errorf("--case-id is required")
	}

	db, cache, err := openCache(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	audits, err := cache.ListSyncAudits(ctx, strings.TrimSpace(*caseID), *limit)
	if err != nil {
		return err
	}

	res := auditverify.VerifyChain(audits)
	fmt.Printf("audit chain verification: case_id=%s total=%d ok=%v\n", *caseID, res.Total, res.OK)
	for _, f := range res.Failures {
		fmt.Printf("  index=%d event_id=%s prev_hash_mismatch=%v chain_hash_mismatch=%v\n",
			f.Index, f.EventID, f.PrevHashMismatch, f.ChainHashMismatch)
	}
	if !res.OK {
		return fmt.Errorf("audit chain broken: %d failures", len(res.Failures))
	}
	return nil
}

// runExport 导出某实体的远端文书并落盘登记。
func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	configPath := fs.String("config", "", "config file (yaml)")
	dbPath := fs.String("db", "", "sqlite database path (overrides config)")
	subjectID := fs.String("subject-id", "", "record or evidence id (required)")
	outDir := fs.String("out-dir", "", "export output directory (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*subjectID) == "" {
		return fmt.Errorf("--subject-id is required")
	}

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*dbPath) != "" {
		cfg.DBPath = *dbPath
	}
	if strings.TrimSpace(*outDir) != "" {
		cfg.ExportDir = *outDir
	}

	logger, err := logx.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, cache, err := openCache(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	client := remote.NewClient(cfg.ServerBaseURL, cfg.RequestTimeout.Std(), logger)
	svc := export.NewService(client, cache, cfg.ExportDir, logger)

	res, err := svc.Document(ctx, strings.TrimSpace(*subjectID))
	if err != nil {
		return err
	}

	fmt.Println("document export completed")
	fmt.Printf("subject_id=%s\n", strings.TrimSpace(*subjectID))
	fmt.Printf("path=%s\n", res.Path)
	fmt.Printf("sha256=%s size=%d\n", res.SHA256, res.Size)
	return nil
}

// runArchive 生成案件归档包（ZIP）。
func runArchive(ctx context.Context, args []string) error {
	cfg := app.DefaultConfig()

	fs := flag.NewFlagSet("archive", flag.ContinueOnError)
	dbPath := fs.String("db", cfg.DBPath, "sqlite database path")
	caseID := fs.String("case-id", "", "case id (required)")
	operator := fs.String("operator", "system", "operator id or name")
	note := fs.String("note", "", "archive note")
	outDir := fs.String("out-dir", "", "archive output directory (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*caseID) == "" {
		return fmt.Errorf("--case-id is required")
	}

	db, cache, err := openCache(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	graph := store.NewGraph()
	res, err := archive.BuildCaseArchive(ctx, graph, cache, archive.Options{
		CaseID:    strings.TrimSpace(*caseID),
		ExportDir: strings.TrimSpace(*outDir),
		Operator:  strings.TrimSpace(*operator),
		Note:      strings.TrimSpace(*note),
	})
	if err != nil {
		return err
	}

	fmt.Println("case archive completed")
	fmt.Printf("case_id=%s\n", res.CaseID)
	fmt.Printf("zip=%s\n", res.ZipPath)
	fmt.Printf("zip_sha256=%s\n", res.ZipSHA256)
	if len(res.Warnings) > 0 {
		fmt.Printf("warnings=%s\n", strings.Join(res.Warnings, " | "))
	}
	return nil
}

// printUsage 输出一级命令帮助。
func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  custody-cli migrate [--db data/custody.db]")
	fmt.Println("  custody-cli cases pull [--config custody.yaml] [--db data/custody.db]")
	fmt.Println("  custody-cli cases list [--db data/custody.db] [--json]")
	fmt.Println("  custody-cli cases show --case-id CASE_ID [--db data/custody.db]")
	fmt.Println("  custody-cli cases rows [--db data/custody.db] [--json=true]")
	fmt.Println("  custody-cli verify audit --case-id CASE_ID [--db data/custody.db] [--limit 5000]")
	fmt.Println("  custody-cli export --subject-id RECORD_ID [--config custody.yaml] [--out-dir data/exports]")
	fmt.Println("  custody-cli archive --case-id CASE_ID [--db data/custody.db] [--out-dir data/archives]")
	fmt.Println("  custody-cli version")
}

// printCasesUsage 输出 cases 子命令帮助。
func printCasesUsage() {
	fmt.Println("Usage:")
	fmt.Println("  custody-cli cases pull [--config path] [--db path]")
	fmt.Println("  custody-cli cases list [--db path] [--json]")
	fmt.Println("  custody-cli cases show --case-id id [--db path]")
	fmt.Println("  custody-cli cases rows [--db path] [--json=true]")
}

// printVerifyUsage 输出 verify 子命令帮助。
func printVerifyUsage() {
	fmt.Println("Usage:")
	fmt.Println("  custody-cli verify audit --case-id id [--db path] [--limit n]")
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
