package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"custody-desk/internal/domain/model"
	"custody-desk/internal/platform/id"
)

// Graph 是内存中的案件实体图：{案件 → 涉案人 → 证物} 外加每案的留痕日志。
//
// 失败语义（对齐单机客户端的使用方式）：
// - 指向不存在 ID 的操作是静默 no-op，不报错——UI 持有的 ID 可能已经过期，
//   需要确认结果的调用方在变更后重新读取。
// - 校验失败（配对不变量、非法枚举）在任何变更发生之前返回错误。
//
// 并发说明：远端调用的完成回调可能落在不同 goroutine 上，
// 所有读写都经由互斥锁串行化；读接口交出深拷贝。
// 同一实体的两次并发编辑按“后写覆盖”处理，不做版本校验。
type Graph struct {
	mu    sync.RWMutex
	cases []*model.Case
	rows  []model.EvidenceRow

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

// NewGraph 创建空实体图。
func NewGraph() *Graph {
	return &Graph{subs: make(map[int]func())}
}

// Subscribe 注册变更通知回调，返回取消函数。
// 回调在每次图变更（及投影重建）之后、锁外触发；回调里可以安全地再读 store。
func (g *Graph) Subscribe(fn func()) (cancel func()) {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	key := g.nextSub
	g.nextSub++
	g.subs[key] = fn
	return func() {
		g.subMu.Lock()
		defer g.subMu.Unlock()
		delete(g.subs, key)
	}
}

// afterMutation 在每次图变更后整体重建扁平投影，然后在锁外触发订阅回调。
// 投影从不增量维护，整体重建让它结构上不可能与实体图漂移。
func (g *Graph) afterMutation() {
	g.mu.Lock()
	g.rows = BuildEvidenceRows(g.snapshotLocked())
	g.mu.Unlock()

	g.subMu.Lock()
	fns := make([]func(), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// CaseFields 是创建案件的输入。ID 为空时本地生成；远端确认后会以 ReplaceCase 换成权威数据。
type CaseFields struct {
	ID           string
	Number       string
	Title        string
	Description  string
	Agency       string
	WorkUnit     string
	Investigator string
}

// CreateCase 创建案件：默认状态 open，并种入第一条状态留痕。
// 新案件插在列表头部（最近优先是显示约定，这里顺手维护）。
func (g *Graph) CreateCase(f CaseFields) string {
	now := time.Now().Unix()
	caseID := strings.TrimSpace(f.ID)
	if caseID == "" {
		caseID = id.New("case")
	}

	c := &model.Case{
		ID:           caseID,
		Number:       strings.TrimSpace(f.Number),
		Title:        strings.TrimSpace(f.Title),
		Description:  f.Description,
		Status:       model.CaseOpen,
		Agency:       strings.TrimSpace(f.Agency),
		WorkUnit:     strings.TrimSpace(f.WorkUnit),
		Investigator: strings.TrimSpace(f.Investigator),
		CreatedAt:    now,
		Logs: []model.CaseLog{{
			ID:        id.New("log"),
			Kind:      string(model.CaseOpen),
			CreatedAt: now,
		}},
		Persons: []model.Person{},
	}

	g.mu.Lock()
	g.cases = append([]*model.Case{c}, g.cases...)
	g.mu.Unlock()

	g.afterMutation()
	return caseID
}

// CasePatch 是案件的部分更新；nil 字段表示不修改。
type CasePatch struct {
	Title        *string
	Description  *string
	Investigator *string
	Agency       *string
	WorkUnit     *string
}

// UpdateCase 对允许的字段做浅合并，并追加一条列出修改字段的留痕。
// 案件不存在时静默 no-op。
func (g *Graph) UpdateCase(caseID string, patch CasePatch) {
	g.mu.Lock()
	c := g.findCaseLocked(caseID)
	if c == nil {
		g.mu.Unlock()
		return
	}

	var changed []string
	apply := func(name string, dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = append(changed, name)
		}
	}
	apply("title", &c.Title, patch.Title)
	apply("description", &c.Description, patch.Description)
	apply("investigator", &c.Investigator, patch.Investigator)
	apply("agency", &c.Agency, patch.Agency)
	apply("work_unit", &c.WorkUnit, patch.WorkUnit)

	if len(changed) == 0 {
		g.mu.Unlock()
		return
	}
	sort.Strings(changed)
	c.Logs = append(c.Logs, model.CaseLog{
		ID:        id.New("log"),
		Kind:      "update",
		Note:      "changed: " + strings.Join(changed, ", "),
		CreatedAt: time.Now().Unix(),
	})
	g.mu.Unlock()

	g.afterMutation()
}

// SetCaseStatus 变更案件状态并追加状态留痕；note 原样写入（可为空）。
func (g *Graph) SetCaseStatus(caseID string, status model.CaseStatus, note string) error {
	if !status.Valid() {
		return fmt.Errorf("unsupported case status: %q", status)
	}

	g.mu.Lock()
	c := g.findCaseLocked(caseID)
	if c == nil {
		g.mu.Unlock()
		return nil
	}
	c.Status = status
	c.Logs = append(c.Logs, model.CaseLog{
		ID:        id.New("log"),
		Kind:      string(status),
		Note:      note,
		CreatedAt: time.Now().Unix(),
	})
	g.mu.Unlock()

	g.afterMutation()
	return nil
}

// NewPerson 是新增涉案人的输入。
// InitialEvidence 不为空时，在同一次操作里于新涉案人名下创建首件证物。
type NewPerson struct {
	ID     string
	Name   string
	Status model.PersonStatus
	Notes  string

	InitialEvidence *NewEvidence
}

// AddPerson 在案件下新增涉案人，先校验姓名/身份配对不变量。
// 案件不存在时返回空 ID（no-op）。
func (g *Graph) AddPerson(caseID string, p NewPerson) (string, error) {
	if err := model.ValidatePersonIdentity(p.Name, p.Status); err != nil {
		return "", err
	}
	var seed *model.Evidence
	if p.InitialEvidence != nil {
		ev, err := buildEvidence(*p.InitialEvidence)
		if err != nil {
			return "", err
		}
		seed = &ev
	}

	g.mu.Lock()
	c := g.findCaseLocked(caseID)
	if c == nil {
		g.mu.Unlock()
		return "", nil
	}

	personID := strings.TrimSpace(p.ID)
	if personID == "" {
		personID = id.New("person")
	}
	person := model.Person{
		ID:       personID,
		Name:     strings.TrimSpace(p.Name),
		Status:   p.Status,
		Notes:    p.Notes,
		Evidence: []model.Evidence{},
	}
	if seed != nil {
		person.Evidence = append(person.Evidence, *seed)
	}
	c.Persons = append(c.Persons, person)
	g.mu.Unlock()

	g.afterMutation()
	return personID, nil
}

// PersonPatch 是涉案人的部分更新；nil 字段表示不修改。
type PersonPatch struct {
	Name   *string
	Status *model.PersonStatus
	Notes  *string
}

// UpdatePerson 应用补丁后重新校验配对不变量——校验在补丁之后而不是之前，
// 只改 status 而保留 Unknown 姓名的补丁必须被拒绝。拒绝时不产生任何变更。
func (g *Graph) UpdatePerson(caseID, personID string, patch PersonPatch) error {
	g.mu.Lock()
	c := g.findCaseLocked(caseID)
	if c == nil {
		g.mu.Unlock()
		return nil
	}
	p := findPerson(c, personID)
	if p == nil {
		g.mu.Unlock()
		return nil
	}

	name := p.Name
	status := p.Status
	if patch.Name != nil {
		name = strings.TrimSpace(*patch.Name)
	}
	if patch.Status != nil {
		status = *patch.Status
	}
	if err := model.ValidatePersonIdentity(name, status); err != nil {
		g.mu.Unlock()
		return err
	}

	p.Name = name
	p.Status = status
	if patch.Notes != nil {
		p.Notes = *patch.Notes
	}
	g.mu.Unlock()

	g.afterMutation()
	return nil
}

// RemovePerson 丢弃涉案人子树。只在远端删除确认成功之后调用；级联规则由远端执行。
func (g *Graph) RemovePerson(caseID, personID string) {
	g.mu.Lock()
	c := g.findCaseLocked(caseID)
	if c == nil {
		g.mu.Unlock()
		return
	}
	removed := false
	for i := range c.Persons {
		if c.Persons[i].ID == personID {
			c.Persons = append(c.Persons[:i], c.Persons[i+1:]...)
			removed = true
			break
		}
	}
	g.mu.Unlock()

	if removed {
		g.afterMutation()
	}
}

// NewEvidence 是新建证物的输入。
// ManualNumber 与 AutoNumber 互斥：手工编号直接落库，自动模式由远端分配后回填。
type NewEvidence struct {
	ID           string
	ManualNumber string
	AutoNumber   bool
	Category     model.DeviceCategory
	Summary      string
	Attachment   *model.Attachment
}

func buildEvidence(f NewEvidence) (model.Evidence, error) {
	if err := model.ValidateEvidenceNumber(f.ManualNumber, f.AutoNumber); err != nil {
		return model.Evidence{}, err
	}
	if !f.Category.Valid() {
		return model.Evidence{}, fmt.Errorf("unsupported device category: %q", f.Category)
	}
	evID := strings.TrimSpace(f.ID)
	if evID == "" {
		evID = id.New("evd")
	}
	return model.Evidence{
		ID:         evID,
		Number:     strings.TrimSpace(f.ManualNumber),
		Category:   f.Category,
		Summary:    f.Summary,
		Attachment: f.Attachment,
		CreatedAt:  time.Now().Unix(),
	}, nil
}

// AddEvidence 在指定涉案人名下新建证物。案件或涉案人不存在时返回空 ID（no-op）。
func (g *Graph) AddEvidence(caseID, personID string, f NewEvidence) (string, error) {
	ev, err := buildEvidence(f)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	c := g.findCaseLocked(caseID)
	if c == nil {
		g.mu.Unlock()
		return "", nil
	}
	p := findPerson(c, personID)
	if p == nil {
		g.mu.Unlock()
		return "", nil
	}
	p.Evidence = append(p.Evidence, ev)
	g.mu.Unlock()

	g.afterMutation()
	return ev.ID, nil
}

// EvidencePatch 是证物的部分更新；nil 字段表示不修改。
type EvidencePatch struct {
	Number     *string
	Category   *model.DeviceCategory
	Summary    *string
	Attachment *model.Attachment
}

// UpdateEvidence 全图扫描定位证物（这个规模不需要二级索引），找不到时静默 no-op。
func (g *Graph) UpdateEvidence(evidenceID string, patch EvidencePatch) error {
	if patch.Category != nil && !patch.Category.Valid() {
		return fmt.Errorf("unsupported device category: %q", *patch.Category)
	}

	g.mu.Lock()
	_, _, ev := g.findEvidenceLocked(evidenceID)
	if ev == nil {
		g.mu.Unlock()
		return nil
	}
	if patch.Number != nil {
		ev.Number = strings.TrimSpace(*patch.Number)
	}
	if patch.Category != nil {
		ev.Category = *patch.Category
	}
	if patch.Summary != nil {
		ev.Summary = *patch.Summary
	}
	if patch.Attachment != nil {
		ev.Attachment = patch.Attachment
	}
	g.mu.Unlock()

	g.afterMutation()
	return nil
}

// AppendCustodyRecord 将环节记录追加到证物对应环节的历史。
// 只应在远端确认提交成功后调用；证物不存在或环节非法时静默 no-op。
func (g *Graph) AppendCustodyRecord(evidenceID string, rec model.StageRecord) {
	if !rec.Stage.Valid() {
		return
	}
	g.mu.Lock()
	_, _, ev := g.findEvidenceLocked(evidenceID)
	if ev == nil {
		g.mu.Unlock()
		return
	}
	ev.Chain.Append(rec.Clone())
	g.mu.Unlock()

	g.afterMutation()
}

// ReplaceCase 用远端拉回的权威案件数据整体替换本地子树；本地没有时插到头部。
func (g *Graph) ReplaceCase(c model.Case) {
	cloned := c.Clone()

	g.mu.Lock()
	replaced := false
	for i := range g.cases {
		if g.cases[i].ID == c.ID {
			g.cases[i] = &cloned
			replaced = true
			break
		}
	}
	if !replaced {
		g.cases = append([]*model.Case{&cloned}, g.cases...)
	}
	g.mu.Unlock()

	g.afterMutation()
}

// GetCaseByID 返回案件深拷贝；不存在返回 nil（常态，不当错误）。
func (g *Graph) GetCaseByID(caseID string) *model.Case {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c := g.findCaseLocked(caseID)
	if c == nil {
		return nil
	}
	out := c.Clone()
	return &out
}

// EvidenceRef 是按证物 ID 反查的结果，带上证物所在的案件与涉案人上下文。
type EvidenceRef struct {
	Evidence model.Evidence
	Case     model.Case
	Person   model.Person
}

// GetEvidenceByID 全图扫描反查证物；不存在返回 nil。
func (g *Graph) GetEvidenceByID(evidenceID string) *EvidenceRef {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, p, ev := g.findEvidenceLocked(evidenceID)
	if ev == nil {
		return nil
	}
	return &EvidenceRef{
		Evidence: ev.Clone(),
		Case:     c.Clone(),
		Person:   p.Clone(),
	}
}

// Cases 返回全部案件的深拷贝快照（保持最近优先顺序）。
func (g *Graph) Cases() []model.Case {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshotLocked()
}

// EvidenceRows 返回最近一次重建的扁平证物投影。
func (g *Graph) EvidenceRows() []model.EvidenceRow {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]model.EvidenceRow(nil), g.rows...)
}

// --- 内部查找（调用方持锁） ---

func (g *Graph) snapshotLocked() []model.Case {
	out := make([]model.Case, len(g.cases))
	for i, c := range g.cases {
		out[i] = c.Clone()
	}
	return out
}

func (g *Graph) findCaseLocked(caseID string) *model.Case {
	for _, c := range g.cases {
		if c.ID == caseID {
			return c
		}
	}
	return nil
}

func findPerson(c *model.Case, personID string) *model.Person {
	for i := range c.Persons {
		if c.Persons[i].ID == personID {
			return &c.Persons[i]
		}
	}
	return nil
}

func (g *Graph) findEvidenceLocked(evidenceID string) (*model.Case, *model.Person, *model.Evidence) {
	for _, c := range g.cases {
		for i := range c.Persons {
			p := &c.Persons[i]
			for j := range p.Evidence {
				if p.Evidence[j].ID == evidenceID {
					return c, p, &p.Evidence[j]
				}
			}
		}
	}
	return nil, nil, nil
}
