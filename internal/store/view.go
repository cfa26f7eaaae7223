package store

import "custody-desk/internal/domain/model"

// BuildEvidenceRows 从实体图整体重建“每件证物一行”的扁平投影，
// 把案件/涉案人上下文反规范化到行上。纯函数，不修改输入。
//
// 不做增量更新：数据规模是桌面级的（受证物总数约束），
// 整体重建换来“投影永远等于源数据”的正确性。
func BuildEvidenceRows(cases []model.Case) []model.EvidenceRow {
	rows := make([]model.EvidenceRow, 0, 16)
	for _, c := range cases {
		for _, p := range c.Persons {
			for _, ev := range p.Evidence {
				row := model.EvidenceRow{
					CaseID:         c.ID,
					CaseTitle:      c.Title,
					PersonID:       p.ID,
					PersonName:     p.Name,
					Investigator:   c.Investigator,
					Agency:         c.Agency,
					CreatedAt:      ev.CreatedAt,
					EvidenceID:     ev.ID,
					EvidenceNumber: ev.Number,
					Category:       ev.Category,
					Summary:        ev.Summary,
				}
				if ev.Attachment != nil {
					row.AttachmentName = ev.Attachment.Name
					row.AttachmentMIME = ev.Attachment.MIME
					row.AttachmentSize = ev.Attachment.Size
				}
				rows = append(rows, row)
			}
		}
	}
	return rows
}
