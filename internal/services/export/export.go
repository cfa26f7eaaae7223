package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"custody-desk/internal/adapters/remote"
	sqliteadapter "custody-desk/internal/adapters/store/sqlite"
	"custody-desk/internal/platform/hash"
)

// Service 负责把远端生成的笔录文书落到本地磁盘，并登记校验信息。
// 文书内容由远端渲染，这里只管拉取、落盘、算哈希、记账。
type Service struct {
	client *remote.Client
	cache  *sqliteadapter.Cache // 可为 nil：不登记导出台账
	dir    string
	logger *zap.Logger
}

// Written 描述一次成功的落盘导出。
type Written struct {
	Path   string
	SHA256 string
	Size   int64
}

func NewService(client *remote.Client, cache *sqliteadapter.Cache, dir string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, cache: cache, dir: dir, logger: logger}
}

// Document 导出某实体（环节记录或证物）的文书，写入导出目录。
// 文件名以远端 Content-Disposition 为准，经过路径净化防止目录穿越。
func (s *Service) Document(ctx context.Context, subjectID string) (*Written, error) {
	data, filename, err := s.client.ExportDocument(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(s.dir, sanitizeFilename(filename, subjectID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write export file: %w", err)
	}

	sum, size, err := hash.File(path)
	if err != nil {
		return nil, fmt.Errorf("hash export file: %w", err)
	}

	if s.cache != nil {
		if _, err := s.cache.SaveExport(ctx, subjectID, path, sum, size); err != nil {
			s.logger.Warn("record export", zap.String("subject_id", subjectID), zap.Error(err))
		}
	}
	s.logger.Info("document exported",
		zap.String("subject_id", subjectID),
		zap.String("path", path),
		zap.Int64("size", size))
	return &Written{Path: path, SHA256: sum, Size: size}, nil
}

// sanitizeFilename 去掉远端文件名里的路径成分，空名时退回按实体 ID 命名。
func sanitizeFilename(name, subjectID string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return fmt.Sprintf("record_%s.bin", subjectID)
	}
	return name
}
