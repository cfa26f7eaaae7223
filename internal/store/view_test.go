package store

import (
	"testing"

	"custody-desk/internal/domain/model"
)

func TestBuildEvidenceRows(t *testing.T) {
	cases := []model.Case{
		{
			ID:           "case_1",
			Title:        "案件一",
			Investigator: "张警官",
			Agency:       "市局网安",
			Persons: []model.Person{
				{
					ID:   "person_1",
					Name: "李某",
					Evidence: []model.Evidence{
						{
							ID:       "evd_1",
							Number:   "EV-001",
							Category: model.DeviceHandphone,
							Summary:  "涉案手机",
							Attachment: &model.Attachment{
								Name: "photo.jpg",
								MIME: "image/jpeg",
								Size: 2048,
							},
						},
						{ID: "evd_2", Number: "EV-002", Category: model.DeviceSSD},
					},
				},
				{ID: "person_2", Name: model.UnknownPersonName}, // 无证物，不产生行
			},
		},
		{ID: "case_2", Title: "案件二"},
	}

	rows := BuildEvidenceRows(cases)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	r := rows[0]
	if r.CaseID != "case_1" || r.CaseTitle != "案件一" || r.PersonName != "李某" {
		t.Fatalf("context not denormalized: %+v", r)
	}
	if r.Investigator != "张警官" || r.Agency != "市局网安" {
		t.Fatalf("case fields not carried onto row: %+v", r)
	}
	if r.AttachmentName != "photo.jpg" || r.AttachmentSize != 2048 {
		t.Fatalf("attachment fields missing: %+v", r)
	}
	if rows[1].EvidenceID != "evd_2" || rows[1].AttachmentName != "" {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}

func TestEvidenceRows_TrackMutations(t *testing.T) {
	g, caseID := newTestGraph(t)
	personID := addKnownPerson(t, g, caseID)

	if n := len(g.EvidenceRows()); n != 0 {
		t.Fatalf("expected empty projection, got %d rows", n)
	}

	evID, err := g.AddEvidence(caseID, personID, NewEvidence{ManualNumber: "EV-1", Category: model.DeviceSSD})
	if err != nil {
		t.Fatalf("add evidence: %v", err)
	}
	rows := g.EvidenceRows()
	if len(rows) != 1 || rows[0].EvidenceID != evID {
		t.Fatalf("projection out of sync after add: %+v", rows)
	}

	// 案件字段变化也要反映到行上（整体重建保证一致）。
	title := "改名"
	g.UpdateCase(caseID, CasePatch{Title: &title})
	if got := g.EvidenceRows()[0].CaseTitle; got != title {
		t.Fatalf("projection out of sync after case rename: %q", got)
	}

	g.RemovePerson(caseID, personID)
	if n := len(g.EvidenceRows()); n != 0 {
		t.Fatalf("projection out of sync after removal: %d rows", n)
	}
}
