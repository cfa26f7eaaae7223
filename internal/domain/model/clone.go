package model

// 实体图由 store 的互斥锁保护，读接口只能交出深拷贝，
// 避免调用方拿着内部切片在锁外读写。附件字节按共享只读缓冲处理，不复制内容。

// Clone 返回 Case 的深拷贝。
func (c Case) Clone() Case {
	out := c
	out.Logs = append([]CaseLog(nil), c.Logs...)
	if c.Persons != nil {
		out.Persons = make([]Person, len(c.Persons))
		for i, p := range c.Persons {
			out.Persons[i] = p.Clone()
		}
	}
	return out
}

// Clone 返回 Person 的深拷贝。
func (p Person) Clone() Person {
	out := p
	if p.Evidence != nil {
		out.Evidence = make([]Evidence, len(p.Evidence))
		for i, e := range p.Evidence {
			out.Evidence[i] = e.Clone()
		}
	}
	return out
}

// Clone 返回 Evidence 的深拷贝。
func (e Evidence) Clone() Evidence {
	out := e
	if e.Attachment != nil {
		att := *e.Attachment
		out.Attachment = &att
	}
	out.Chain = e.Chain.Clone()
	return out
}

// Clone 返回 CustodyChain 的深拷贝。
func (c CustodyChain) Clone() CustodyChain {
	return CustodyChain{
		Acquisition: cloneRecords(c.Acquisition),
		Preparation: cloneRecords(c.Preparation),
		Extraction:  cloneRecords(c.Extraction),
		Analysis:    cloneRecords(c.Analysis),
	}
}

// Clone 返回 StageRecord 的深拷贝。
func (r StageRecord) Clone() StageRecord {
	out := r
	if r.Steps != nil {
		out.Steps = make([]AcquisitionStep, len(r.Steps))
		for i, s := range r.Steps {
			out.Steps[i] = s
			if s.Photo != nil {
				photo := *s.Photo
				out.Steps[i].Photo = &photo
			}
		}
	}
	out.Hypotheses = append([]HypothesisTool(nil), r.Hypotheses...)
	out.Findings = append([]AnalysisFinding(nil), r.Findings...)
	out.Reports = append([]Attachment(nil), r.Reports...)
	if r.File != nil {
		f := *r.File
		out.File = &f
	}
	return out
}

func cloneRecords(in []StageRecord) []StageRecord {
	if in == nil {
		return nil
	}
	out := make([]StageRecord, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
