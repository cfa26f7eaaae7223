package auditverify

import (
	"fmt"
	"testing"

	sqliteadapter "custody-desk/internal/adapters/store/sqlite"
	"custody-desk/internal/platform/hash"
)

func buildChain(entries []sqliteadapter.SyncAudit) []sqliteadapter.SyncAudit {
	prev := ""
	for i := range entries {
		entries[i].ChainPrevHash = prev
		entries[i].ChainHash = hash.Text(
			prev,
			entries[i].CaseID,
			entries[i].Operation,
			entries[i].Status,
			fmt.Sprintf("%d", entries[i].OccurredAt),
			string(entries[i].DetailJSON),
		)
		prev = entries[i].ChainHash
	}
	return entries
}

func TestVerifyChain_OK(t *testing.T) {
	audits := buildChain([]sqliteadapter.SyncAudit{
		{
			EventID:    "evt_1",
			CaseID:     "case_1",
			Operation:  "case_create",
			Status:     "success",
			DetailJSON: []byte(`{"title":"测试案件"}`),
			OccurredAt: 1700000000,
		},
		{
			EventID:    "evt_2",
			CaseID:     "case_1",
			Operation:  "stage_acquisition",
			Status:     "success",
			DetailJSON: []byte(`{}`),
			OccurredAt: 1700000001,
		},
	})

	res := VerifyChain(audits)
	if !res.OK {
		t.Fatalf("expected OK, got %+v", res)
	}
	if res.Total != 2 || res.Failed != 0 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if res.LastChainHash != audits[1].ChainHash {
		t.Fatalf("unexpected last chain hash: %q", res.LastChainHash)
	}
}

func TestVerifyChain_Empty(t *testing.T) {
	res := VerifyChain(nil)
	if !res.OK || res.Total != 0 {
		t.Fatalf("empty chain must verify: %+v", res)
	}
}

func TestVerifyChain_TamperedDetail(t *testing.T) {
	audits := buildChain([]sqliteadapter.SyncAudit{
		{
			EventID:    "evt_1",
			CaseID:     "case_1",
			Operation:  "case_create",
			Status:     "success",
			DetailJSON: []byte(`{"title":"原始标题"}`),
			OccurredAt: 1700000000,
		},
	})

	// 事后篡改 detail：chain_hash 重算必然对不上。
	audits[0].DetailJSON = []byte(`{"title":"被改过的标题"}`)

	res := VerifyChain(audits)
	if res.OK || res.ChainHashFailed != 1 {
		t.Fatalf("expected chain hash failure, got %+v", res)
	}
	if len(res.Failures) != 1 || !res.Failures[0].ChainHashMismatch {
		t.Fatalf("unexpected failures: %+v", res.Failures)
	}
}

func TestVerifyChain_ReformattedDetailStillVerifies(t *testing.T) {
	audits := buildChain([]sqliteadapter.SyncAudit{
		{
			EventID:    "evt_1",
			CaseID:     "case_1",
			Operation:  "case_create",
			Status:     "success",
			DetailJSON: []byte(`{"k":"v"}`),
			OccurredAt: 1700000000,
		},
	})

	// 只有格式差异（缩进/空白）不算篡改。
	audits[0].DetailJSON = []byte("{\n  \"k\": \"v\"\n}")

	res := VerifyChain(audits)
	if !res.OK {
		t.Fatalf("reformatted detail must still verify: %+v", res)
	}
}

func TestVerifyChain_BrokenLink(t *testing.T) {
	audits := buildChain([]sqliteadapter.SyncAudit{
		{EventID: "evt_1", CaseID: "case_1", Operation: "case_create", Status: "success", DetailJSON: []byte(`{}`), OccurredAt: 1700000000},
		{EventID: "evt_2", CaseID: "case_1", Operation: "person_create", Status: "success", DetailJSON: []byte(`{}`), OccurredAt: 1700000001},
		{EventID: "evt_3", CaseID: "case_1", Operation: "evidence_create", Status: "success", DetailJSON: []byte(`{}`), OccurredAt: 1700000002},
	})

	// 挖掉中间一条：后一条的 prev 链接断裂。
	broken := append([]sqliteadapter.SyncAudit{}, audits[0], audits[2])

	res := VerifyChain(broken)
	if res.OK || res.PrevHashFailed == 0 {
		t.Fatalf("expected prev hash failure, got %+v", res)
	}
	// 链以库内 chain_hash 推进，断点之后的记录不再级联报错。
	if res.Failed != 1 {
		t.Fatalf("expected exactly 1 failure, got %+v", res)
	}
}
