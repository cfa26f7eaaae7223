package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sqliteadapter "custody-desk/internal/adapters/store/sqlite"
	"custody-desk/internal/app"
	"custody-desk/internal/domain/model"
	"custody-desk/internal/platform/hash"
	"custody-desk/internal/store"
)

// Options 定义“案件归档包（ZIP）”生成参数。
//
// 归档包面向内部流转/复核：把案件树快照、同步留痕、证物附件和已导出文书
// 打进一个 ZIP，附带结构化清单(manifest)和 hash 列表，便于离线核对。
type Options struct {
	CaseID string

	// ExportDir 可选：显式指定归档落盘目录（默认 data/archives）。
	ExportDir string

	// Operator/Note 写入同步留痕。
	Operator string
	Note     string
}

type FileHashEntry struct {
	Path      string `json:"path"`       // ZIP 内路径（使用 "/" 分隔）
	SHA256    string `json:"sha256"`     // 文件内容 SHA-256
	SizeBytes int64  `json:"size_bytes"` // 原始字节数
	Kind      string `json:"kind"`       // case|attachment|document|manifest
}

type ManifestDocument struct {
	Export  sqliteadapter.ExportInfo `json:"export"`
	ZipPath string                   `json:"zip_path"`
}

type Manifest struct {
	Schema      string `json:"schema"`
	GeneratedAt int64  `json:"generated_at"`

	App struct {
		Version   string `json:"version"`
		Commit    string `json:"commit"`
		BuildTime string `json:"build_time"`
	} `json:"app"`

	Case      *model.Case              `json:"case"`
	Audits    []sqliteadapter.SyncAudit `json:"audits"`
	Documents []ManifestDocument        `json:"documents"`
	Files     []FileHashEntry           `json:"files"`
	Warnings  []string                  `json:"warnings,omitempty"`
	Note      string                    `json:"note,omitempty"`
	Stats     map[string]any            `json:"stats,omitempty"`
}

// Result 是一次归档任务的摘要输出。
type Result struct {
	CaseID     string   `json:"case_id"`
	ZipPath    string   `json:"zip_path"`
	ZipSHA256  string   `json:"zip_sha256"`
	Warnings   []string `json:"warnings,omitempty"`
	StartedAt  int64    `json:"started_at"`
	FinishedAt int64    `json:"finished_at"`
}

const manifestSchemaV1 = "custody_desk.case_archive_manifest.v1"

// BuildCaseArchive 生成案件归档包并登记到导出台账。
//
// ZIP 内容（v1）：
// - manifest.json：案件树/留痕/文书的结构化清单
// - hashes.sha256：ZIP 内各文件（除自身）sha256 列表（sha256sum 兼容格式）
// - case.json：完整案件子树快照
// - attachments/..：证物附件原始字节
// - documents/..：已落盘的远端文书
func BuildCaseArchive(ctx context.Context, graph *store.Graph, cache *sqliteadapter.Cache, opts Options) (*Result, error) {
	startedAt := time.Now().Unix()

	caseID := strings.TrimSpace(opts.CaseID)
	if caseID == "" {
		return nil, fmt.Errorf("case_id is required")
	}
	operator := strings.TrimSpace(opts.Operator)
	if operator == "" {
		operator = "system"
	}
	exportDir := strings.TrimSpace(opts.ExportDir)
	if exportDir == "" {
		exportDir = app.DefaultConfig().ArchiveDir
	}
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	// 案件树优先取实体图里的在线版本，图里没有时退回本地快照。
	cs := graph.GetCaseByID(caseID)
	if cs == nil && cache != nil {
		cached, err := cache.GetCaseSnapshot(ctx, caseID)
		if err != nil {
			return nil, err
		}
		cs = cached
	}
	if cs == nil {
		return nil, fmt.Errorf("case not found: %s", caseID)
	}

	var warnings []string
	var audits []sqliteadapter.SyncAudit
	if cache != nil {
		var err error
		audits, err = cache.ListSyncAudits(ctx, caseID, 5000)
		if err != nil {
			return nil, err
		}
	}

	// 导出台账按实体聚合：案件本身 + 每件证物 + 每条环节记录。
	var exports []sqliteadapter.ExportInfo
	if cache != nil {
		subjects := []string{caseID}
		for _, p := range cs.Persons {
			for _, e := range p.Evidence {
				subjects = append(subjects, e.ID)
				for _, stage := range []model.CustodyStage{
					model.StageAcquisition, model.StagePreparation, model.StageExtraction, model.StageAnalysis,
				} {
					for _, rec := range e.Chain.History(stage) {
						subjects = append(subjects, rec.ID)
					}
				}
			}
		}
		for _, sub := range subjects {
			items, err := cache.ListExportsBySubject(ctx, sub)
			if err != nil {
				return nil, err
			}
			exports = append(exports, items...)
		}
	}

	zipName := fmt.Sprintf("%s_case_archive_%d.zip", caseID, time.Now().Unix())
	zipPath := filepath.Join(exportDir, zipName)
	f, err := os.Create(zipPath)
	if err != nil {
		return nil, fmt.Errorf("create zip: %w", err)
	}
	defer func() { _ = f.Close() }()

	zw := zip.NewWriter(f)
	defer func() { _ = zw.Close() }()

	var fileHashes []FileHashEntry

	// case.json
	caseRaw, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal case: %w", err)
	}
	if sum, size, err := writeZipFileFromBytes(zw, "case.json", caseRaw); err != nil {
		return nil, fmt.Errorf("write case.json to zip: %w", err)
	} else {
		fileHashes = append(fileHashes, FileHashEntry{Path: "case.json", SHA256: sum, SizeBytes: size, Kind: "case"})
	}

	// attachments（内存字节，直接写入）
	attachmentCount := 0
	for _, p := range cs.Persons {
		for _, e := range p.Evidence {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			att := e.Attachment
			if att == nil || len(att.Data) == 0 {
				continue
			}
			name := filepath.Base(strings.TrimSpace(att.Name))
			if name == "" || name == "." {
				name = "attachment.bin"
			}
			zp := filepath.ToSlash(filepath.Join("attachments", e.ID+"_"+name))
			sum, size, err := writeZipFileFromBytes(zw, zp, att.Data)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("skip attachment %s: %v", e.ID, err))
				continue
			}
			fileHashes = append(fileHashes, FileHashEntry{Path: zp, SHA256: sum, SizeBytes: size, Kind: "attachment"})
			attachmentCount++
		}
	}

	// documents（磁盘文件，缺失不阻断归档，但要在 manifest 里留痕）
	manifestDocs := make([]ManifestDocument, 0, len(exports))
	for _, exp := range exports {
		src := strings.TrimSpace(exp.FilePath)
		if src == "" {
			continue
		}
		zp := filepath.ToSlash(filepath.Join("documents", filepath.Base(src)))
		sum, size, err := writeZipFileFromDisk(zw, src, zp)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("skip document %s -> %s: %v", src, zp, err))
			continue
		}
		fileHashes = append(fileHashes, FileHashEntry{Path: zp, SHA256: sum, SizeBytes: size, Kind: "document"})
		manifestDocs = append(manifestDocs, ManifestDocument{Export: exp, ZipPath: zp})
	}

	manifest := Manifest{
		Schema:      manifestSchemaV1,
		GeneratedAt: time.Now().Unix(),
		Case:        cs,
		Audits:      audits,
		Documents:   manifestDocs,
		Warnings:    warnings,
		Note:        strings.TrimSpace(opts.Note),
		Stats: map[string]any{
			"person_count":     len(cs.Persons),
			"attachment_count": attachmentCount,
			"audit_count":      len(audits),
			"document_count":   len(manifestDocs),
		},
	}
	manifest.App.Version = app.Version
	manifest.App.Commit = app.Commit
	manifest.App.BuildTime = app.BuildTime

	// 排序：让 manifest 与 hashes.sha256 尽量稳定（便于对比）。
	sort.Slice(fileHashes, func(i, j int) bool { return fileHashes[i].Path < fileHashes[j].Path })
	manifest.Files = fileHashes

	manifestRaw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestSum, manifestSize, err := writeZipFileFromBytes(zw, "manifest.json", manifestRaw)
	if err != nil {
		return nil, fmt.Errorf("write manifest to zip: %w", err)
	}
	fileHashes = append(fileHashes, FileHashEntry{Path: "manifest.json", SHA256: manifestSum, SizeBytes: manifestSize, Kind: "manifest"})

	// hashes.sha256（sha256sum 兼容格式，不包含自身）
	sort.Slice(fileHashes, func(i, j int) bool { return fileHashes[i].Path < fileHashes[j].Path })
	hashLines := make([]string, 0, len(fileHashes)+4)
	hashLines = append(hashLines, "# custody-desk case archive hash list")
	hashLines = append(hashLines, fmt.Sprintf("# generated_at=%d", time.Now().Unix()))
	hashLines = append(hashLines, "# format: <sha256><two spaces><path>")
	for _, fh := range fileHashes {
		hashLines = append(hashLines, fmt.Sprintf("%s  %s", fh.SHA256, fh.Path))
	}
	hashLines = append(hashLines, "")
	if _, _, err := writeZipFileFromBytes(zw, "hashes.sha256", []byte(strings.Join(hashLines, "\n"))); err != nil {
		return nil, fmt.Errorf("write hashes.sha256 to zip: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close zip file: %w", err)
	}

	zipSum, zipSize, err := hash.File(zipPath)
	if err != nil {
		return nil, fmt.Errorf("hash zip: %w", err)
	}

	if cache != nil {
		if _, err := cache.SaveExport(ctx, caseID, zipPath, zipSum, zipSize); err != nil {
			warnings = append(warnings, fmt.Sprintf("record archive export: %v", err))
		}
		_ = cache.AppendSyncAudit(ctx, caseID, caseID, "case_archive", "success", operator, map[string]any{
			"zip_path":   zipPath,
			"zip_sha256": zipSum,
			"warnings":   warnings,
		})
	}

	return &Result{
		CaseID:     caseID,
		ZipPath:    zipPath,
		ZipSHA256:  zipSum,
		Warnings:   warnings,
		StartedAt:  startedAt,
		FinishedAt: time.Now().Unix(),
	}, nil
}

func writeZipFileFromDisk(zw *zip.Writer, srcPath, zipPath string) (sum string, size int64, err error) {
	fi, err := os.Stat(srcPath)
	if err != nil {
		return "", 0, err
	}
	if fi.IsDir() {
		return "", 0, fmt.Errorf("is a directory")
	}

	hdr, err := zip.FileInfoHeader(fi)
	if err != nil {
		return "", 0, err
	}
	hdr.Name = zipPath
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return "", 0, err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(w, hasher), src)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

func writeZipFileFromBytes(zw *zip.Writer, zipPath string, data []byte) (sum string, size int64, err error) {
	hdr := &zip.FileHeader{
		Name:     zipPath,
		Method:   zip.Deflate,
		Modified: time.Now(),
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return "", 0, err
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return "", 0, err
	}
	return hash.Bytes(data), int64(len(data)), nil
}
