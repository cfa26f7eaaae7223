package model

// CaseStatus 表示案件状态（闭合枚举）。
type CaseStatus string

const (
	// CaseOpen 在办案件。
	CaseOpen CaseStatus = "open"
	// CaseReopen 重启侦办的案件。
	CaseReopen CaseStatus = "reopen"
	// CaseClosed 已结案件。
	CaseClosed CaseStatus = "closed"
)

// Valid 判断状态是否属于闭合枚举。
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseOpen, CaseReopen, CaseClosed:
		return true
	}
	return false
}

// CaseLog 是案件操作留痕条目。
// 状态变更、字段修改都以追加条目的方式记录，已写入的条目不再修改。
type CaseLog struct {
	ID        string `json:"log_id"`
	Kind      string `json:"kind"` // 状态值（open/reopen/closed）或 update
	Note      string `json:"note,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// Case 表示一个侦办案件，聚合涉案人与操作留痕。
// Logs 按时间升序存储；UI 展示倒序是显示层约定，不在这里处理。
type Case struct {
	ID           string     `json:"case_id"`
	Number       string     `json:"case_number,omitempty"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Status       CaseStatus `json:"status"`
	Agency       string     `json:"agency,omitempty"`
	WorkUnit     string     `json:"work_unit,omitempty"`
	Investigator string     `json:"investigator,omitempty"`
	CreatedAt    int64      `json:"created_at"`
	Logs         []CaseLog  `json:"logs"`
	Persons      []Person   `json:"persons"`
}

// PersonStatus 表示涉案人身份分类。
// 空字符串表示“身份未知”，只允许与哨兵姓名 Unknown 配对出现。
type PersonStatus string

const (
	PersonWitness   PersonStatus = "witness"
	PersonReported  PersonStatus = "reported"
	PersonSuspected PersonStatus = "suspected"
	PersonSuspect   PersonStatus = "suspect"
	PersonDefendant PersonStatus = "defendant"
)

// UnknownPersonName 是“身份未知涉案人”的哨兵姓名。
const UnknownPersonName = "Unknown"

// Valid 判断身份分类是否属于闭合枚举（不含空值）。
func (s PersonStatus) Valid() bool {
	switch s {
	case PersonWitness, PersonReported, PersonSuspected, PersonSuspect, PersonDefendant:
		return true
	}
	return false
}

// Person 表示案件下的涉案人（已知身份或 Unknown）。
type Person struct {
	ID       string       `json:"person_id"`
	Name     string       `json:"name"`
	Status   PersonStatus `json:"status,omitempty"`
	Notes    string       `json:"notes,omitempty"`
	Evidence []Evidence   `json:"evidence"`
}

// Unknown 返回该涉案人是否为身份未知记录。
func (p Person) Unknown() bool {
	return p.Name == UnknownPersonName
}

// DeviceCategory 表示证物来源设备类别（闭合枚举）。
type DeviceCategory string

const (
	DeviceHandphone DeviceCategory = "handphone"
	DeviceSSD       DeviceCategory = "ssd"
	DeviceHarddisk  DeviceCategory = "harddisk"
	DevicePC        DeviceCategory = "pc"
	DeviceLaptop    DeviceCategory = "laptop"
	DeviceDVR       DeviceCategory = "dvr"
)

// Valid 判断设备类别是否属于闭合枚举。
func (c DeviceCategory) Valid() bool {
	switch c {
	case DeviceHandphone, DeviceSSD, DeviceHarddisk, DevicePC, DeviceLaptop, DeviceDVR:
		return true
	}
	return false
}

// Attachment 是整体读入内存的二进制附件。
// 字节内容只在客户端内存中停留，提交时交给远端边界编码传输。
type Attachment struct {
	Name string `json:"name"`
	MIME string `json:"mime"`
	Size int64  `json:"size_bytes"`
	Data []byte `json:"-"`
}

// Evidence 表示一件数字证物，归属且仅归属一个涉案人。
// 不支持在涉案人之间移动证物，只能在某个涉案人名下新建。
type Evidence struct {
	ID         string         `json:"evidence_id"`
	Number     string         `json:"evidence_number,omitempty"`
	Category   DeviceCategory `json:"category"`
	Summary    string         `json:"summary,omitempty"`
	Attachment *Attachment    `json:"attachment,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	Chain      CustodyChain   `json:"chain"`
}
