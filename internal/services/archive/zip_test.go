package archive

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"testing"

	"custody-desk/internal/domain/model"
	"custody-desk/internal/store"
)

func TestBuildCaseArchive(t *testing.T) {
	g := store.NewGraph()
	g.ReplaceCase(model.Case{
		ID:     "case_1",
		Title:  "测试案件",
		Status: model.CaseOpen,
		Persons: []model.Person{
			{
				ID:     "person_1",
				Name:   "李某",
				Status: model.PersonSuspect,
				Evidence: []model.Evidence{
					{
						ID:       "evd_1",
						Number:   "EV-001",
						Category: model.DeviceHandphone,
						Attachment: &model.Attachment{
							Name: "photo.jpg",
							MIME: "image/jpeg",
							Size: 2,
							Data: []byte{0xFF, 0xD8},
						},
					},
				},
			},
		},
	})

	res, err := BuildCaseArchive(context.Background(), g, nil, Options{
		CaseID:    "case_1",
		ExportDir: t.TempDir(),
		Operator:  "张警官",
	})
	if err != nil {
		t.Fatalf("build archive: %v", err)
	}
	if res.ZipSHA256 == "" {
		t.Fatalf("expected zip hash, got %+v", res)
	}

	zr, err := zip.OpenReader(res.ZipPath)
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	defer zr.Close()

	entries := map[string]*zip.File{}
	for _, f := range zr.File {
		entries[f.Name] = f
	}
	for _, want := range []string{"case.json", "manifest.json", "hashes.sha256", "attachments/evd_1_photo.jpg"} {
		if entries[want] == nil {
			t.Fatalf("missing zip entry %q, have %v", want, keys(entries))
		}
	}

	// manifest 里的案件树要能还原出证物。
	mf, err := entries["manifest.json"].Open()
	if err != nil {
		t.Fatalf("open manifest: %v", err)
	}
	defer mf.Close()
	raw, err := io.ReadAll(mf)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.Schema != manifestSchemaV1 {
		t.Fatalf("unexpected schema: %q", manifest.Schema)
	}
	if manifest.Case == nil || len(manifest.Case.Persons) != 1 {
		t.Fatalf("case tree missing from manifest: %+v", manifest.Case)
	}
	if len(manifest.Files) == 0 {
		t.Fatalf("expected file hash entries")
	}
}

func TestBuildCaseArchive_MissingCase(t *testing.T) {
	g := store.NewGraph()
	if _, err := BuildCaseArchive(context.Background(), g, nil, Options{
		CaseID:    "case_missing",
		ExportDir: t.TempDir(),
	}); err == nil {
		t.Fatalf("expected error for missing case")
	}
}

func keys(m map[string]*zip.File) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
