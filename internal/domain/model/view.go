package model

// EvidenceRow 是证物列表页使用的扁平投影。
// 永远由实体图整体重建，不单独维护，避免派生视图与源数据漂移。
type EvidenceRow struct {
	CaseID    string `json:"case_id"`
	CaseTitle string `json:"case_title"`

	PersonID   string `json:"person_id"`
	PersonName string `json:"person_name"`

	Investigator string `json:"investigator,omitempty"`
	Agency       string `json:"agency,omitempty"`
	CreatedAt    int64  `json:"created_at"`

	EvidenceID     string         `json:"evidence_id"`
	EvidenceNumber string         `json:"evidence_number,omitempty"`
	Category       DeviceCategory `json:"category"`
	Summary        string         `json:"summary,omitempty"`

	AttachmentName string `json:"attachment_name,omitempty"`
	AttachmentMIME string `json:"attachment_mime,omitempty"`
	AttachmentSize int64  `json:"attachment_size,omitempty"`
}
