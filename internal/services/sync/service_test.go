package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"custody-desk/internal/adapters/remote"
	"custody-desk/internal/domain/model"
	"custody-desk/internal/store"
)

type testBackend struct {
	t       *testing.T
	mux     *http.ServeMux
	hits    atomic.Int64
	service *Service
	graph   *store.Graph
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{t: t, mux: http.NewServeMux()}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.hits.Add(1)
		b.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	b.graph = store.NewGraph()
	client := remote.NewClient(srv.URL, 5*time.Second, nil)
	b.service = NewService(b.graph, client, nil, nil, "张警官")
	return b
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeRejection(w http.ResponseWriter, message string, status int) {
	writeJSON(w, map[string]any{"error": true, "message": message, "status": status})
}

func TestCreateCase_MergesRemoteID(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("POST /api/cases", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"case_id": "case_remote_1", "case_number": "BJ-2026-007"})
	})

	caseID, err := b.service.CreateCase(context.Background(), store.CaseFields{Title: "测试案件"})
	require.NoError(t, err)
	require.Equal(t, "case_remote_1", caseID)

	c := b.graph.GetCaseByID("case_remote_1")
	require.NotNil(t, c)
	require.Equal(t, "BJ-2026-007", c.Number)
	require.Equal(t, model.CaseOpen, c.Status)
}

func TestCreateCase_FailureLeavesGraphUntouched(t *testing.T) {
	b := newTestBackend(t)
	b.mux.HandleFunc("POST /api/cases", func(w http.ResponseWriter, r *http.Request) {
		writeRejection(w, "case number already taken", 409)
	})

	_, err := b.service.CreateCase(context.Background(), store.CaseFields{Title: "重复案件"})
	require.Error(t, err)
	require.Equal(t, 409, remote.AsCallError(err).Status)
	require.Empty(t, b.graph.Cases(), "failed call must not leave optimistic local state")
}

func TestAddPerson_ValidationSkipsRemoteCall(t *testing.T) {
	b := newTestBackend(t)
	b.graph.ReplaceCase(model.Case{ID: "case_1", Status: model.CaseOpen})

	// 配对不变量在本地拦下，远端一次都不该被打到。
	_, err := b.service.AddPerson(context.Background(), "case_1", store.NewPerson{
		Name:   model.UnknownPersonName,
		Status: model.PersonSuspect,
	})
	require.ErrorIs(t, err, model.ErrIdentityPairing)
	require.Zero(t, b.hits.Load())
	require.Empty(t, b.graph.GetCaseByID("case_1").Persons)
}

func TestAddPerson_SeedEvidenceIDsFromRemote(t *testing.T) {
	b := newTestBackend(t)
	b.graph.ReplaceCase(model.Case{ID: "case_1", Status: model.CaseOpen})

	b.mux.HandleFunc("POST /api/persons", func(w http.ResponseWriter, r *http.Request) {
		var req remote.PersonUpsertRequest
		require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
		require.False(b.t, req.IsUnknownPerson)
		require.Equal(b.t, "suspect", req.SuspectStatus)
		require.Equal(b.t, "HP", req.EvidenceCategory)

		writeJSON(w, map[string]any{
			"person_id": "person_remote_1",
			"evidence": []map[string]any{
				{"evidence_id": "evd_remote_1", "evidence_number": "SYS-0001"},
			},
		})
	})

	personID, err := b.service.AddPerson(context.Background(), "case_1", store.NewPerson{
		Name:   "李某",
		Status: model.PersonSuspect,
		InitialEvidence: &store.NewEvidence{
			AutoNumber: true,
			Category:   model.DeviceHandphone,
		},
	})
	require.NoError(t, err)
	require.Equal(t, "person_remote_1", personID)

	c := b.graph.GetCaseByID("case_1")
	require.Len(t, c.Persons, 1)
	require.Len(t, c.Persons[0].Evidence, 1)
	require.Equal(t, "evd_remote_1", c.Persons[0].Evidence[0].ID)
	require.Equal(t, "SYS-0001", c.Persons[0].Evidence[0].Number)
}

func TestUpdatePerson_RemoteFailureLeavesPersonUntouched(t *testing.T) {
	b := newTestBackend(t)
	b.graph.ReplaceCase(model.Case{
		ID:     "case_1",
		Status: model.CaseOpen,
		Persons: []model.Person{
			{ID: "person_1", Name: "李某", Status: model.PersonWitness},
		},
	})
	b.mux.HandleFunc("PATCH /api/persons/person_1", func(w http.ResponseWriter, r *http.Request) {
		writeRejection(w, "conflict", 409)
	})

	status := model.PersonSuspect
	err := b.service.UpdatePerson(context.Background(), "case_1", "person_1", store.PersonPatch{Status: &status})
	require.Error(t, err)

	p := b.graph.GetCaseByID("case_1").Persons[0]
	require.Equal(t, model.PersonWitness, p.Status)
}

func TestSetCaseStatus_InvalidEnumRejectedLocally(t *testing.T) {
	b := newTestBackend(t)
	b.graph.ReplaceCase(model.Case{ID: "case_1", Status: model.CaseOpen})

	err := b.service.SetCaseStatus(context.Background(), "case_1", model.CaseStatus("archived"), "")
	require.Error(t, err)
	require.Zero(t, b.hits.Load())
}

func TestSubmitStage_AppendsOnlyAfterConfirm(t *testing.T) {
	b := newTestBackend(t)
	b.graph.ReplaceCase(model.Case{
		ID:     "case_1",
		Status: model.CaseOpen,
		Persons: []model.Person{
			{ID: "person_1", Name: "李某", Status: model.PersonSuspect, Evidence: []model.Evidence{
				{ID: "evd_1", Number: "EV-001", Category: model.DeviceHandphone},
			}},
		},
	})

	rejected := true
	b.mux.HandleFunc("POST /api/evidence/evd_1/stages", func(w http.ResponseWriter, r *http.Request) {
		if rejected {
			writeRejection(w, "stage rejected", 422)
			return
		}
		writeJSON(w, map[string]any{"record_id": "rec_1", "evidence_id": "evd_1", "stage": "acquisition"})
	})

	rec := &model.StageRecord{
		ID:    "client_rec_1",
		Stage: model.StageAcquisition,
		Steps: []model.AcquisitionStep{{Description: "断电拆机"}},
	}

	err := b.service.SubmitStage(context.Background(), "evd_1", rec)
	require.Error(t, err)
	require.Empty(t, b.graph.GetEvidenceByID("evd_1").Evidence.Chain.Acquisition)

	rejected = false
	require.NoError(t, b.service.SubmitStage(context.Background(), "evd_1", rec))
	history := b.graph.GetEvidenceByID("evd_1").Evidence.Chain.Acquisition
	require.Len(t, history, 1)
	require.Equal(t, "client_rec_1", history[0].ID)
}

func TestSubmitStage_ContextCancelledAbortsWithoutMutation(t *testing.T) {
	b := newTestBackend(t)
	b.graph.ReplaceCase(model.Case{
		ID:     "case_1",
		Status: model.CaseOpen,
		Persons: []model.Person{
			{ID: "person_1", Name: "李某", Status: model.PersonSuspect, Evidence: []model.Evidence{
				{ID: "evd_1", Number: "EV-001", Category: model.DeviceHandphone},
			}},
		},
	})
	b.mux.HandleFunc("POST /api/evidence/evd_1/stages", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"record_id": "rec_1"})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.service.SubmitStage(ctx, "evd_1", &model.StageRecord{ID: "r", Stage: model.StageAcquisition})
	require.Error(t, err)
	require.Empty(t, b.graph.GetEvidenceByID("evd_1").Evidence.Chain.Acquisition)
}

func TestDeletePerson_RemovesAfterConfirm(t *testing.T) {
	b := newTestBackend(t)
	b.graph.ReplaceCase(model.Case{
		ID:     "case_1",
		Status: model.CaseOpen,
		Persons: []model.Person{
			{ID: "person_1", Name: model.UnknownPersonName},
		},
	})
	b.mux.HandleFunc("DELETE /api/persons/person_1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})

	require.NoError(t, b.service.DeletePerson(context.Background(), "case_1", "person_1"))
	require.Empty(t, b.graph.GetCaseByID("case_1").Persons)
}

func TestRefreshCase_ReplacesLocalSubtree(t *testing.T) {
	b := newTestBackend(t)
	b.graph.ReplaceCase(model.Case{ID: "case_1", Title: "旧标题", Status: model.CaseOpen})

	b.mux.HandleFunc("GET /api/cases/case_1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"case_id": "case_1",
			"title":   "远端标题",
			"status":  "reopen",
			"persons": []map[string]any{
				{"person_id": "person_1", "is_unknown_person": true},
			},
		})
	})

	require.NoError(t, b.service.RefreshCase(context.Background(), "case_1"))

	c := b.graph.GetCaseByID("case_1")
	require.Equal(t, "远端标题", c.Title)
	require.Equal(t, model.CaseReopen, c.Status)
	require.Len(t, c.Persons, 1)
	// 远端的匿名涉案人落图后映射为 Unknown + 空身份。
	require.Equal(t, model.UnknownPersonName, c.Persons[0].Name)
	require.Empty(t, string(c.Persons[0].Status))
}
