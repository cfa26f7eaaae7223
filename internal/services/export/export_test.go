package export

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"custody-desk/internal/adapters/remote"
	"custody-desk/internal/platform/hash"
)

func TestDocument_WritesAndHashes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="acquisition_record.docx"`)
		_, _ = w.Write([]byte("document-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	svc := NewService(remote.NewClient(srv.URL, 5*time.Second, nil), nil, dir, nil)

	res, err := svc.Document(context.Background(), "rec_1")
	if err != nil {
		t.Fatalf("export document: %v", err)
	}
	if filepath.Base(res.Path) != "acquisition_record.docx" {
		t.Fatalf("unexpected filename: %q", res.Path)
	}

	raw, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(raw) != "document-bytes" {
		t.Fatalf("unexpected content: %q", raw)
	}
	if res.SHA256 != hash.Bytes(raw) || res.Size != int64(len(raw)) {
		t.Fatalf("hash/size mismatch: %+v", res)
	}
}

func TestDocument_SanitizesRemoteFilename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="../../etc/passwd"`)
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	svc := NewService(remote.NewClient(srv.URL, 5*time.Second, nil), nil, dir, nil)

	res, err := svc.Document(context.Background(), "rec_1")
	if err != nil {
		t.Fatalf("export document: %v", err)
	}
	if filepath.Dir(res.Path) != dir {
		t.Fatalf("path escaped export dir: %q", res.Path)
	}
}

func TestDocument_RemoteRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":true,"message":"record not found","status":404}`))
	}))
	defer srv.Close()

	svc := NewService(remote.NewClient(srv.URL, 5*time.Second, nil), nil, t.TempDir(), nil)

	if _, err := svc.Document(context.Background(), "rec_missing"); err == nil {
		t.Fatalf("expected error for remote rejection")
	}
}
