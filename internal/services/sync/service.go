package sync

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"custody-desk/internal/adapters/remote"
	sqliteadapter "custody-desk/internal/adapters/store/sqlite"
	"custody-desk/internal/domain/model"
	"custody-desk/internal/store"
)

// Service 把本地变更意图翻译成远端调用，并在成功后回写实体图。
//
// 顺序保证：任何失败路径都不碰实体图——图里只会出现远端确认过的状态，
// 不存在失败调用残留的“乐观”本地数据。重试（如果有）是调用方/UI 的决定，
// 这一层不自动重试。
//
// 回写策略：默认在远端成功后整树回刷受影响案件（更安全）；
// 只有当响应本身就是被改实体的权威完整记录（典型：新建实体的 ID 分配）
// 才做字段级合并。
type Service struct {
	graph  *store.Graph
	client *remote.Client
	cache  *sqliteadapter.Cache // 可为 nil：不落本地快照
	logger *zap.Logger
	actor  string
}

// NewService 创建同步服务。actor 写入同步留痕（通常是当前侦查员）。
func NewService(graph *store.Graph, client *remote.Client, cache *sqliteadapter.Cache, logger *zap.Logger, actor string) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		graph:  graph,
		client: client,
		cache:  cache,
		logger: logger,
		actor:  actor,
	}
}

// snapshot 把实体图中某案件的当前（远端确认过的）状态固化到本地快照库，
// 并追加一条同步留痕。快照失败只告警不报错：本地缓存坏了不应该打断办案流程。
func (s *Service) snapshot(ctx context.Context, caseID, entityID, operation string, detail any) {
	if s.cache == nil {
		return
	}
	c := s.graph.GetCaseByID(caseID)
	if c != nil {
		if err := s.cache.SaveCaseSnapshot(ctx, *c); err != nil {
			s.logger.Warn("save case snapshot", zap.String("case_id", caseID), zap.Error(err))
		}
	}
	if err := s.cache.AppendSyncAudit(ctx, caseID, entityID, operation, "success", s.actor, detail); err != nil {
		s.logger.Warn("append sync audit", zap.String("case_id", caseID), zap.Error(err))
	}
}

// refreshCase 整树回刷：拉取权威案件子树替换本地。
// 回刷失败时退回 fallback（通常是把已确认的变更按本地语义补上），不让成功的提交丢失。
func (s *Service) refreshCase(ctx context.Context, caseID string, fallback func()) {
	payload, err := s.client.FetchCase(ctx, caseID)
	if err != nil {
		s.logger.Warn("refetch case after mutation", zap.String("case_id", caseID), zap.Error(err))
		if fallback != nil {
			fallback()
		}
		return
	}
	s.graph.ReplaceCase(payload.ToModel())
}

// CreateCase 新建案件：远端分配权威 ID，本地以该 ID 建图。
func (s *Service) CreateCase(ctx context.Context, f store.CaseFields) (string, error) {
	payload, err := s.client.CreateCase(ctx, remote.CaseUpsertRequest{
		CaseNumber:   f.Number,
		Title:        f.Title,
		Description:  f.Description,
		Investigator: f.Investigator,
		Agency:       f.Agency,
		WorkUnit:     f.WorkUnit,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.CaseID) == "" {
		return "", fmt.Errorf("remote created case without id")
	}

	f.ID = payload.CaseID
	if payload.CaseNumber != "" {
		f.Number = payload.CaseNumber
	}
	caseID := s.graph.CreateCase(f)
	s.snapshot(ctx, caseID, caseID, "case_create", map[string]any{"title": f.Title})
	return caseID, nil
}

// UpdateCase 部分更新案件字段。成功后默认整树回刷；回刷失败则按本地补丁语义兜底。
func (s *Service) UpdateCase(ctx context.Context, caseID string, patch store.CasePatch) error {
	req := remote.CaseUpsertRequest{}
	if patch.Title != nil {
		req.Title = *patch.Title
	}
	if patch.Description != nil {
		req.Description = *patch.Description
	}
	if patch.Investigator != nil {
		req.Investigator = *patch.Investigator
	}
	if patch.Agency != nil {
		req.Agency = *patch.Agency
	}
	if patch.WorkUnit != nil {
		req.WorkUnit = *patch.WorkUnit
	}

	if _, err := s.client.UpdateCase(ctx, caseID, req); err != nil {
		return err
	}
	s.refreshCase(ctx, caseID, func() { s.graph.UpdateCase(caseID, patch) })
	s.snapshot(ctx, caseID, caseID, "case_update", nil)
	return nil
}

// SetCaseStatus 变更案件状态。枚举在远端调用之前本地校验。
func (s *Service) SetCaseStatus(ctx context.Context, caseID string, status model.CaseStatus, note string) error {
	if !status.Valid() {
		return fmt.Errorf("unsupported case status: %q", status)
	}

	if _, err := s.client.SetCaseStatus(ctx, caseID, remote.CaseStatusRequest{
		Status: string(status),
		Notes:  note,
	}); err != nil {
		return err
	}
	// 状态响应就是本次变更的权威记录，直接本地合并。
	if err := s.graph.SetCaseStatus(caseID, status, note); err != nil {
		return err
	}
	s.snapshot(ctx, caseID, caseID, "case_status", map[string]any{"status": string(status), "note": note})
	return nil
}

// AddPerson 新增涉案人（可带首件证物）。配对不变量在远端调用之前本地校验。
func (s *Service) AddPerson(ctx context.Context, caseID string, p store.NewPerson) (string, error) {
	if err := model.ValidatePersonIdentity(p.Name, p.Status); err != nil {
		return "", err
	}

	req := remote.PersonUpsertRequest{
		CaseID:          caseID,
		IsUnknownPerson: p.Name == model.UnknownPersonName,
	}
	if !req.IsUnknownPerson {
		req.PersonName = p.Name
		req.SuspectStatus = string(p.Status)
	}
	if p.InitialEvidence != nil {
		seed := p.InitialEvidence
		if err := model.ValidateEvidenceNumber(seed.ManualNumber, seed.AutoNumber); err != nil {
			return "", err
		}
		if !seed.Category.Valid() {
			return "", fmt.Errorf("unsupported device category: %q", seed.Category)
		}
		req.EvidenceNumber = seed.ManualNumber
		req.EvidenceCategory = remote.DeviceCategoryToken(seed.Category)
		req.EvidenceSummary = seed.Summary
	}

	payload, err := s.client.CreatePerson(ctx, req)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.PersonID) == "" {
		return "", fmt.Errorf("remote created person without id")
	}

	p.ID = payload.PersonID
	if p.InitialEvidence != nil && len(payload.Evidence) > 0 {
		seed := *p.InitialEvidence
		seed.ID = payload.Evidence[0].EvidenceID
		if n := payload.Evidence[0].EvidenceNumber; n != "" {
			seed.ManualNumber = n
			seed.AutoNumber = false
		}
		p.InitialEvidence = &seed
	}
	personID, err := s.graph.AddPerson(caseID, p)
	if err != nil {
		return "", err
	}
	s.snapshot(ctx, caseID, personID, "person_create", map[string]any{"unknown": req.IsUnknownPerson})
	return personID, nil
}

// UpdatePerson 部分更新涉案人。补丁后的配对不变量在远端调用之前本地校验。
func (s *Service) UpdatePerson(ctx context.Context, caseID, personID string, patch store.PersonPatch) error {
	current := s.findPerson(caseID, personID)
	if current == nil {
		// 本地没有这个涉案人：引用已过期，按 no-op 处理。
		return nil
	}

	name := current.Name
	status := current.Status
	if patch.Name != nil {
		name = strings.TrimSpace(*patch.Name)
	}
	if patch.Status != nil {
		status = *patch.Status
	}
	if err := model.ValidatePersonIdentity(name, status); err != nil {
		return err
	}

	req := remote.PersonUpsertRequest{
		CaseID:          caseID,
		IsUnknownPerson: name == model.UnknownPersonName,
	}
	if !req.IsUnknownPerson {
		req.PersonName = name
		req.SuspectStatus = string(status)
	}
	if _, err := s.client.UpdatePerson(ctx, personID, req); err != nil {
		return err
	}
	if err := s.graph.UpdatePerson(caseID, personID, patch); err != nil {
		return err
	}
	s.snapshot(ctx, caseID, personID, "person_update", nil)
	return nil
}

// DeletePerson 删除涉案人：远端确认后本地丢弃子树（级联规则由远端执行）。
func (s *Service) DeletePerson(ctx context.Context, caseID, personID string) error {
	if err := s.client.DeletePerson(ctx, personID); err != nil {
		return err
	}
	s.graph.RemovePerson(caseID, personID)
	s.snapshot(ctx, caseID, personID, "person_delete", nil)
	return nil
}

// SavePersonNotes 保存涉案人笔记，以远端回显为准写回。
func (s *Service) SavePersonNotes(ctx context.Context, caseID, personID, notes string) error {
	payload, err := s.client.SavePersonNotes(ctx, remote.PersonNotesRequest{
		SubjectID: personID,
		Notes:     notes,
	})
	if err != nil {
		return err
	}
	saved := payload.Notes
	if err := s.graph.UpdatePerson(caseID, personID, store.PersonPatch{Notes: &saved}); err != nil {
		return err
	}
	s.snapshot(ctx, caseID, personID, "person_notes", nil)
	return nil
}

// AddEvidence 新建证物。编号模式/设备类别在远端调用之前本地校验；
// 自动编号模式下以远端分配的编号落图。
func (s *Service) AddEvidence(ctx context.Context, caseID, personID string, f store.NewEvidence) (string, error) {
	if err := model.ValidateEvidenceNumber(f.ManualNumber, f.AutoNumber); err != nil {
		return "", err
	}
	if !f.Category.Valid() {
		return "", fmt.Errorf("unsupported device category: %q", f.Category)
	}

	c := s.graph.GetCaseByID(caseID)
	investigator := ""
	if c != nil {
		investigator = c.Investigator
	}
	payload, err := s.client.CreateEvidence(ctx, remote.EvidenceUpsertRequest{
		CaseID:         caseID,
		PersonID:       personID,
		EvidenceNumber: f.ManualNumber,
		DeviceCategory: remote.DeviceCategoryToken(f.Category),
		Summary:        f.Summary,
		Investigator:   investigator,
	}, f.Attachment)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(payload.EvidenceID) == "" {
		return "", fmt.Errorf("remote created evidence without id")
	}

	f.ID = payload.EvidenceID
	if payload.EvidenceNumber != "" {
		f.ManualNumber = payload.EvidenceNumber
		f.AutoNumber = false
	}
	evidenceID, err := s.graph.AddEvidence(caseID, personID, f)
	if err != nil {
		return "", err
	}
	s.snapshot(ctx, caseID, evidenceID, "evidence_create", map[string]any{"category": string(f.Category)})
	return evidenceID, nil
}

// UpdateEvidence 部分更新证物。
func (s *Service) UpdateEvidence(ctx context.Context, evidenceID string, patch store.EvidencePatch) error {
	ref := s.graph.GetEvidenceByID(evidenceID)
	if ref == nil {
		return nil
	}

	req := remote.EvidenceUpsertRequest{
		CaseID:   ref.Case.ID,
		PersonID: ref.Person.ID,
	}
	if patch.Number != nil {
		req.EvidenceNumber = *patch.Number
	}
	if patch.Category != nil {
		req.DeviceCategory = remote.DeviceCategoryToken(*patch.Category)
	}
	if patch.Summary != nil {
		req.Summary = *patch.Summary
	}
	if _, err := s.client.UpdateEvidence(ctx, evidenceID, req, patch.Attachment); err != nil {
		return err
	}
	if err := s.graph.UpdateEvidence(evidenceID, patch); err != nil {
		return err
	}
	s.snapshot(ctx, ref.Case.ID, evidenceID, "evidence_update", nil)
	return nil
}

// SubmitStage 提交一次已采收的环节记录。
// 记录必须来自 Collector.Harvest（ID 已生成）；远端确认成功后才写入取证链。
func (s *Service) SubmitStage(ctx context.Context, evidenceID string, rec *model.StageRecord) error {
	if rec == nil {
		return fmt.Errorf("stage record is required")
	}
	if !rec.Stage.Valid() {
		return fmt.Errorf("unsupported custody stage: %q", rec.Stage)
	}

	req := buildStageRequest(evidenceID, rec)
	if _, err := s.client.SubmitStage(ctx, req, rec); err != nil {
		return err
	}

	s.graph.AppendCustodyRecord(evidenceID, *rec)
	caseID := ""
	if ref := s.graph.GetEvidenceByID(evidenceID); ref != nil {
		caseID = ref.Case.ID
	}
	s.snapshot(ctx, caseID, evidenceID, "stage_"+string(rec.Stage), map[string]any{"record_id": rec.ID})
	return nil
}

// RefreshCase 主动拉取案件权威子树覆盖本地（打开案件详情页时调用）。
func (s *Service) RefreshCase(ctx context.Context, caseID string) error {
	payload, err := s.client.FetchCase(ctx, caseID)
	if err != nil {
		return err
	}
	s.graph.ReplaceCase(payload.ToModel())
	s.snapshot(ctx, caseID, caseID, "case_refresh", nil)
	return nil
}

// LoadCases 拉取案件清单做初始装载（摘要层级，子树按需再刷）。
func (s *Service) LoadCases(ctx context.Context) (int, error) {
	payloads, err := s.client.ListCases(ctx)
	if err != nil {
		return 0, err
	}
	for i := len(payloads) - 1; i >= 0; i-- {
		// 倒序替换，保持远端清单的先后次序映射到“最近优先”的本地排列。
		s.graph.ReplaceCase(payloads[i].ToModel())
	}
	return len(payloads), nil
}

func (s *Service) findPerson(caseID, personID string) *model.Person {
	c := s.graph.GetCaseByID(caseID)
	if c == nil {
		return nil
	}
	for i := range c.Persons {
		if c.Persons[i].ID == personID {
			return &c.Persons[i]
		}
	}
	return nil
}

func buildStageRequest(evidenceID string, rec *model.StageRecord) remote.StageSubmitRequest {
	req := remote.StageSubmitRequest{
		EvidenceID:     evidenceID,
		Stage:          string(rec.Stage),
		Investigator:   rec.Investigator,
		Location:       rec.Location,
		EvidenceSource: rec.EvidenceSource,
		EvidenceType:   rec.EvidenceType,
		EvidenceDetail: rec.EvidenceDetail,
		Notes:          rec.Notes,
		FileSizeLabel:  rec.FileSizeLabel,
		ClientRecordID: rec.ID,
	}
	for _, step := range rec.Steps {
		req.Steps = append(req.Steps, remote.StageStepPayload{Description: step.Description})
	}
	for _, ht := range rec.Hypotheses {
		req.Pairs = append(req.Pairs, remote.StagePairPayload{Hypothesis: ht.Hypothesis, Tool: ht.Tool})
	}
	for _, f := range rec.Findings {
		req.Findings = append(req.Findings, remote.StageFindingPayload{
			Hypothesis: f.Hypothesis,
			Tool:       f.Tool,
			Result:     f.Result,
		})
	}
	return req
}
