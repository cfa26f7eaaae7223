package remote

import (
	"strings"

	"custody-desk/internal/domain/model"
)

// 远端契约使用自己的字段名与取值 token，这里集中做双向翻译。
// 请求侧统一 omitempty：未填写的字段不发送，不发 null 占位。

// CaseUpsertRequest 对应“创建/更新案件”的请求体。
type CaseUpsertRequest struct {
	CaseNumber   string `json:"case_number,omitempty"`
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	Investigator string `json:"investigator,omitempty"`
	Agency       string `json:"agency,omitempty"`
	WorkUnit     string `json:"work_unit,omitempty"`
}

// CaseStatusRequest 对应“变更案件状态”的请求体。
type CaseStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// PersonUpsertRequest 对应“创建/更新涉案人”的请求体。
// 远端用 is_unknown_person 区分身份未知记录；已知记录才带姓名与身份分类。
type PersonUpsertRequest struct {
	CaseID          string `json:"case_id"`
	IsUnknownPerson bool   `json:"is_unknown_person"`
	PersonName      string `json:"person_name,omitempty"`
	SuspectStatus   string `json:"suspect_status,omitempty"`

	// 可选的首件证物种子字段（与新建涉案人同一请求提交）。
	EvidenceNumber   string `json:"evidence_number,omitempty"`
	EvidenceCategory string `json:"evidence_category,omitempty"`
	EvidenceSummary  string `json:"evidence_summary,omitempty"`
}

// PersonNotesRequest 对应“保存/编辑涉案人笔记”的请求体。
type PersonNotesRequest struct {
	SubjectID string `json:"subject_id"`
	Notes     string `json:"notes"`
}

// EvidenceUpsertRequest 对应“创建/更新证物”的请求体（附件另走 multipart 字段）。
type EvidenceUpsertRequest struct {
	CaseID         string `json:"case_id"`
	PersonID       string `json:"person_id"`
	EvidenceNumber string `json:"evidence_number,omitempty"` // 仅手工编号模式携带
	DeviceCategory string `json:"device_category"`
	Summary        string `json:"summary,omitempty"`
	Investigator   string `json:"investigator,omitempty"`
}

// StageSubmitRequest 对应“提交取证环节”的请求体（附件另走 multipart 字段）。
type StageSubmitRequest struct {
	EvidenceID string `json:"evidence_id"`
	Stage      string `json:"stage"`

	Investigator   string `json:"investigator,omitempty"`
	Location       string `json:"location,omitempty"`
	EvidenceSource string `json:"evidence_source,omitempty"`
	EvidenceType   string `json:"evidence_type,omitempty"`
	EvidenceDetail string `json:"evidence_detail,omitempty"`
	Notes          string `json:"notes,omitempty"`

	Steps []StageStepPayload `json:"steps,omitempty"`
	Pairs []StagePairPayload `json:"pairs,omitempty"`

	FileSizeLabel string `json:"file_size_label,omitempty"`

	Findings []StageFindingPayload `json:"findings,omitempty"`

	ClientRecordID string `json:"client_record_id,omitempty"`
}

type StageStepPayload struct {
	Description string `json:"description"`
	PhotoField  string `json:"photo_field,omitempty"` // multipart 内对应的字段名
}

type StagePairPayload struct {
	Hypothesis string `json:"hypothesis"`
	Tool       string `json:"tool"`
}

type StageFindingPayload struct {
	Hypothesis string `json:"hypothesis"`
	Tool       string `json:"tool"`
	Result     string `json:"result"`
}

// --- 响应载荷 ---

// CasePayload 是远端返回的案件权威记录（可能携带完整子树）。
type CasePayload struct {
	CaseID       string          `json:"case_id"`
	CaseNumber   string          `json:"case_number,omitempty"`
	Title        string          `json:"title,omitempty"`
	Description  string          `json:"description,omitempty"`
	Status       string          `json:"status,omitempty"`
	Agency       string          `json:"agency,omitempty"`
	WorkUnit     string          `json:"work_unit,omitempty"`
	Investigator string          `json:"investigator,omitempty"`
	CreatedAt    int64           `json:"created_at,omitempty"`
	Logs         []LogPayload    `json:"logs,omitempty"`
	Persons      []PersonPayload `json:"persons,omitempty"`
}

type LogPayload struct {
	LogID     string `json:"log_id"`
	Kind      string `json:"kind"`
	Note      string `json:"note,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

type PersonPayload struct {
	PersonID        string            `json:"person_id"`
	IsUnknownPerson bool              `json:"is_unknown_person"`
	PersonName      string            `json:"person_name,omitempty"`
	SuspectStatus   string            `json:"suspect_status,omitempty"`
	Notes           string            `json:"notes,omitempty"`
	Evidence        []EvidencePayload `json:"evidence,omitempty"`
}

type EvidencePayload struct {
	EvidenceID     string `json:"evidence_id"`
	EvidenceNumber string `json:"evidence_number,omitempty"`
	DeviceCategory string `json:"device_category,omitempty"`
	Summary        string `json:"summary,omitempty"`
	CreatedAt      int64  `json:"created_at,omitempty"`

	AttachmentName string `json:"attachment_name,omitempty"`
	AttachmentMIME string `json:"attachment_mime,omitempty"`
	AttachmentSize int64  `json:"attachment_size,omitempty"`

	Stages []StageRecordPayload `json:"stages,omitempty"`
}

type StageRecordPayload struct {
	RecordID  string `json:"record_id"`
	Stage     string `json:"stage"`
	CreatedAt int64  `json:"created_at,omitempty"`

	Investigator   string `json:"investigator,omitempty"`
	Location       string `json:"location,omitempty"`
	EvidenceSource string `json:"evidence_source,omitempty"`
	EvidenceType   string `json:"evidence_type,omitempty"`
	EvidenceDetail string `json:"evidence_detail,omitempty"`
	Notes          string `json:"notes,omitempty"`

	Steps         []StageStepPayload    `json:"steps,omitempty"`
	Pairs         []StagePairPayload    `json:"pairs,omitempty"`
	FileSizeLabel string                `json:"file_size_label,omitempty"`
	Findings      []StageFindingPayload `json:"findings,omitempty"`
}

// StatusPayload 是状态变更确认。
type StatusPayload struct {
	CaseID string `json:"case_id"`
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// NotesPayload 是笔记保存后的回显。
type NotesPayload struct {
	SubjectID string `json:"subject_id"`
	Notes     string `json:"notes"`
}

// StagePayload 是环节提交确认。
type StagePayload struct {
	RecordID   string `json:"record_id"`
	EvidenceID string `json:"evidence_id"`
	Stage      string `json:"stage"`
}

// CreatedPayload 是创建类操作的最小确认（至少携带新 ID）。
type CreatedPayload struct {
	ID string `json:"id"`
}

// --- token 翻译 ---

// 远端的设备类别 token 与本地枚举不同名，集中在这里映射。
var deviceCategoryToRemote = map[model.DeviceCategory]string{
	model.DeviceHandphone: "HP",
	model.DeviceSSD:       "SSD",
	model.DeviceHarddisk:  "HDD",
	model.DevicePC:        "PC",
	model.DeviceLaptop:    "LAPTOP",
	model.DeviceDVR:       "DVR",
}

var deviceCategoryFromRemote = map[string]model.DeviceCategory{
	"HP":     model.DeviceHandphone,
	"SSD":    model.DeviceSSD,
	"HDD":    model.DeviceHarddisk,
	"PC":     model.DevicePC,
	"LAPTOP": model.DeviceLaptop,
	"DVR":    model.DeviceDVR,
}

// DeviceCategoryToken 返回设备类别的远端 token；未知类别原样透传。
func DeviceCategoryToken(c model.DeviceCategory) string {
	if t, ok := deviceCategoryToRemote[c]; ok {
		return t
	}
	return string(c)
}

// ParseDeviceCategory 把远端 token 翻译回本地枚举；未知 token 按小写透传。
func ParseDeviceCategory(token string) model.DeviceCategory {
	if c, ok := deviceCategoryFromRemote[strings.ToUpper(strings.TrimSpace(token))]; ok {
		return c
	}
	return model.DeviceCategory(strings.ToLower(strings.TrimSpace(token)))
}

// ToModel 把远端案件载荷翻译成本地实体。
func (p CasePayload) ToModel() model.Case {
	c := model.Case{
		ID:           p.CaseID,
		Number:       p.CaseNumber,
		Title:        p.Title,
		Description:  p.Description,
		Status:       model.CaseStatus(strings.ToLower(strings.TrimSpace(p.Status))),
		Agency:       p.Agency,
		WorkUnit:     p.WorkUnit,
		Investigator: p.Investigator,
		CreatedAt:    p.CreatedAt,
		Logs:         make([]model.CaseLog, 0, len(p.Logs)),
		Persons:      make([]model.Person, 0, len(p.Persons)),
	}
	if c.Status == "" {
		c.Status = model.CaseOpen
	}
	for _, l := range p.Logs {
		c.Logs = append(c.Logs, model.CaseLog{
			ID:        l.LogID,
			Kind:      l.Kind,
			Note:      l.Note,
			CreatedAt: l.CreatedAt,
		})
	}
	for _, pp := range p.Persons {
		c.Persons = append(c.Persons, pp.ToModel())
	}
	return c
}

// ToModel 把远端涉案人载荷翻译成本地实体。
func (p PersonPayload) ToModel() model.Person {
	out := model.Person{
		ID:       p.PersonID,
		Name:     p.PersonName,
		Status:   model.PersonStatus(strings.ToLower(strings.TrimSpace(p.SuspectStatus))),
		Notes:    p.Notes,
		Evidence: make([]model.Evidence, 0, len(p.Evidence)),
	}
	if p.IsUnknownPerson {
		out.Name = model.UnknownPersonName
		out.Status = ""
	}
	for _, ep := range p.Evidence {
		out.Evidence = append(out.Evidence, ep.ToModel())
	}
	return out
}

// ToModel 把远端证物载荷翻译成本地实体。
// 附件只还原元数据：字节内容留在远端，需要时另行下载。
func (p EvidencePayload) ToModel() model.Evidence {
	ev := model.Evidence{
		ID:        p.EvidenceID,
		Number:    p.EvidenceNumber,
		Category:  ParseDeviceCategory(p.DeviceCategory),
		Summary:   p.Summary,
		CreatedAt: p.CreatedAt,
	}
	if p.AttachmentName != "" {
		ev.Attachment = &model.Attachment{
			Name: p.AttachmentName,
			MIME: p.AttachmentMIME,
			Size: p.AttachmentSize,
		}
	}
	for _, sp := range p.Stages {
		ev.Chain.Append(sp.ToModel())
	}
	return ev
}

// ToModel 把远端环节记录载荷翻译成本地实体。
func (p StageRecordPayload) ToModel() model.StageRecord {
	rec := model.StageRecord{
		ID:             p.RecordID,
		Stage:          model.CustodyStage(strings.ToLower(strings.TrimSpace(p.Stage))),
		CreatedAt:      p.CreatedAt,
		Investigator:   p.Investigator,
		Location:       p.Location,
		EvidenceSource: p.EvidenceSource,
		EvidenceType:   p.EvidenceType,
		EvidenceDetail: p.EvidenceDetail,
		Notes:          p.Notes,
		FileSizeLabel:  p.FileSizeLabel,
	}
	for _, s := range p.Steps {
		rec.Steps = append(rec.Steps, model.AcquisitionStep{Description: s.Description})
	}
	for _, pr := range p.Pairs {
		rec.Hypotheses = append(rec.Hypotheses, model.HypothesisTool{Hypothesis: pr.Hypothesis, Tool: pr.Tool})
	}
	for _, f := range p.Findings {
		rec.Findings = append(rec.Findings, model.AnalysisFinding{Hypothesis: f.Hypothesis, Tool: f.Tool, Result: f.Result})
	}
	return rec
}
