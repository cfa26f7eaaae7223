package model

// CustodyStage 表示取证链路的四个环节。
type CustodyStage string

const (
	StageAcquisition CustodyStage = "acquisition"
	StagePreparation CustodyStage = "preparation"
	StageExtraction  CustodyStage = "extraction"
	StageAnalysis    CustodyStage = "analysis"
)

// Valid 判断环节标识是否属于闭合枚举。
func (s CustodyStage) Valid() bool {
	switch s {
	case StageAcquisition, StagePreparation, StageExtraction, StageAnalysis:
		return true
	}
	return false
}

// AcquisitionStep 是采集环节的单个操作步骤，可附现场照片。
type AcquisitionStep struct {
	Description string      `json:"description"`
	Photo       *Attachment `json:"photo,omitempty"`
}

// HypothesisTool 是准备环节的“侦查假设 + 使用工具”配对。
type HypothesisTool struct {
	Hypothesis string `json:"hypothesis"`
	Tool       string `json:"tool"`
}

// AnalysisFinding 是分析环节对某条假设的结论。
// Hypothesis/Tool 来自准备环节的只读回显，分析人只补 Result。
type AnalysisFinding struct {
	Hypothesis string `json:"hypothesis"`
	Tool       string `json:"tool"`
	Result     string `json:"result"`
}

// StageRecord 是某个环节一次提交后的留痕记录。
// ID 在 harvest 时生成，同一表单重复提交会产生不同 ID 的记录。
type StageRecord struct {
	ID        string       `json:"record_id"`
	Stage     CustodyStage `json:"stage"`
	CreatedAt int64        `json:"created_at"`

	// 四个环节共有的登记字段。
	Investigator   string `json:"investigator,omitempty"`
	Location       string `json:"location,omitempty"`
	EvidenceSource string `json:"evidence_source,omitempty"`
	EvidenceType   string `json:"evidence_type,omitempty"`
	EvidenceDetail string `json:"evidence_detail,omitempty"`
	Notes          string `json:"notes,omitempty"`

	// 采集环节：操作步骤清单。
	Steps []AcquisitionStep `json:"steps,omitempty"`

	// 准备环节：假设/工具配对清单。
	Hypotheses []HypothesisTool `json:"hypotheses,omitempty"`

	// 提取环节：单个提取产物文件及人读大小标签。
	File          *Attachment `json:"file,omitempty"`
	FileSizeLabel string      `json:"file_size_label,omitempty"`

	// 分析环节：按假设给出的结论 + 零或多份分析报告附件。
	Findings []AnalysisFinding `json:"findings,omitempty"`
	Reports  []Attachment      `json:"reports,omitempty"`
}

// CustodyChain 是一件证物的四环节留痕链。
// 每个环节都是累积历史（同一环节可多次发生），不覆盖已有记录。
type CustodyChain struct {
	Acquisition []StageRecord `json:"acquisition"`
	Preparation []StageRecord `json:"preparation"`
	Extraction  []StageRecord `json:"extraction"`
	Analysis    []StageRecord `json:"analysis"`
}

// History 返回指定环节的历史记录切片；未知环节返回 nil。
func (c *CustodyChain) History(stage CustodyStage) []StageRecord {
	switch stage {
	case StageAcquisition:
		return c.Acquisition
	case StagePreparation:
		return c.Preparation
	case StageExtraction:
		return c.Extraction
	case StageAnalysis:
		return c.Analysis
	}
	return nil
}

// Append 将记录追加到对应环节；未知环节不做任何事。
func (c *CustodyChain) Append(rec StageRecord) {
	switch rec.Stage {
	case StageAcquisition:
		c.Acquisition = append(c.Acquisition, rec)
	case StagePreparation:
		c.Preparation = append(c.Preparation, rec)
	case StageExtraction:
		c.Extraction = append(c.Extraction, rec)
	case StageAnalysis:
		c.Analysis = append(c.Analysis, rec)
	}
}

// LatestPreparation 返回最近一次准备环节记录；没有则返回 nil。
// 分析环节的假设回显取自这里。
func (c *CustodyChain) LatestPreparation() *StageRecord {
	if len(c.Preparation) == 0 {
		return nil
	}
	return &c.Preparation[len(c.Preparation)-1]
}
