package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"custody-desk/internal/domain/model"
)

// CallError 是远端边界的统一失败形态。
// 三类失败都归一到这里：远端业务拒绝（error:true 载荷）、
// 非 2xx 的传输层响应、以及根本没拿到响应的传输失败。
// 调用方只需要处理这一种错误形状。
type CallError struct {
	Message string          `json:"message"`
	Status  int             `json:"status,omitempty"` // 传输层状态码；传输失败时为 0
	Detail  json.RawMessage `json:"detail,omitempty"` // 远端附带的结构化细节
}

func (e *CallError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("remote call failed (%d): %s", e.Status, e.Message)
	}
	return "remote call failed: " + e.Message
}

// AsCallError 从普通 error 中取出 *CallError；不是则包一层（传输失败归一化）。
func AsCallError(err error) *CallError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CallError); ok {
		return ce
	}
	return &CallError{Message: err.Error()}
}

// Client 是对外部存证服务的 HTTP 客户端。
// 这一层不做自动重试：是否重试由调用方/UI 决定。
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// NewClient 创建远端客户端。超时是传输层关注点，配置在这里。
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient, logger: logger}
}

// envelope 是远端错误载荷的探测结构。
// 传输层 2xx 但载荷带 error:true 时，同样按失败处理。
type envelope struct {
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Status  int             `json:"status,omitempty"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}

// decode 统一处理一次调用的三类结局：传输失败、远端拒绝、成功载荷。
func (c *Client) decode(resp *resty.Response, callErr error, out any) error {
	if callErr != nil {
		c.logger.Warn("remote transport failure", zap.Error(callErr))
		return &CallError{Message: callErr.Error()}
	}

	body := resp.Body()
	var probe envelope
	if len(body) > 0 && json.Unmarshal(body, &probe) == nil && probe.Error {
		status := probe.Status
		if status == 0 {
			status = resp.StatusCode()
		}
		return &CallError{Message: probe.Message, Status: status, Detail: probe.Detail}
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return &CallError{
			Message: strings.TrimSpace(string(body)),
			Status:  resp.StatusCode(),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &CallError{Message: fmt.Sprintf("decode response: %v", err), Status: resp.StatusCode()}
	}
	return nil
}

// CreateCase 创建案件，返回远端的权威案件记录（至少携带 case_id）。
func (c *Client) CreateCase(ctx context.Context, req CaseUpsertRequest) (*CasePayload, error) {
	var out CasePayload
	resp, err := c.http.R().SetContext(ctx).SetBody(req).Post("/api/cases")
	if err := c.decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateCase 部分更新案件字段。
func (c *Client) UpdateCase(ctx context.Context, caseID string, req CaseUpsertRequest) (*CasePayload, error) {
	var out CasePayload
	resp, err := c.http.R().SetContext(ctx).SetBody(req).
		Patch("/api/cases/" + url.PathEscape(caseID))
	if err := c.decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetCaseStatus 变更案件状态。
func (c *Client) SetCaseStatus(ctx context.Context, caseID string, req CaseStatusRequest) (*StatusPayload, error) {
	var out StatusPayload
	resp, err := c.http.R().SetContext(ctx).SetBody(req).
		Post("/api/cases/" + url.PathEscape(caseID) + "/status")
	if err := c.decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchCase 拉取案件完整子树（权威数据，用于变更后的整树回刷）。
func (c *Client) FetchCase(ctx context.Context, caseID string) (*CasePayload, error) {
	var out CasePayload
	resp, err := c.http.R().SetContext(ctx).
		Get("/api/cases/" + url.PathEscape(caseID))
	if err := c.decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCases 拉取案件清单（摘要层级，不含子树）。
func (c *Client) ListCases(ctx context.Context) ([]CasePayload, error) {
	var out struct {
		Cases []CasePayload `json:"cases"`
	}
	resp, err := c.http.R().SetContext(ctx).Get("/api/cases")
	if err := c.decode(resp, err, &out); err != nil {
		return nil, err
	}
	return out.Cases, nil
}

// CreatePerson 创建涉案人（可携带首件证物种子字段）。
func (c *Client) CreatePerson(ctx context.Context, req PersonUpsertRequest) (*PersonPayload, error) {
	var out PersonPayload
	resp, err := c.http.R().SetContext(ctx).SetBody(req).Post("/api/persons")
	if err := c.decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePerson 部分更新涉案人。
func (c *Client) UpdatePerson(ctx context.Context, personID string, req PersonUpsertRequest) (*PersonPayload, error) {
	var out PersonPayload
	resp, err := c.http.R().SetContext(ctx).SetBody(req).
		Patch("/api/persons/" + url.PathEscape(personID))
	if err := c.decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePerson 删除涉案人；级联由远端按自己的规则执行。
func (c *Client) DeletePerson(ctx context.Context, personID string) error {
	resp, err := c.http.R().SetContext(ctx).
		Delete("/api/persons/" + url.PathEscape(personID))
	return c.decode(resp, err, nil)
}

// SavePersonNotes 保存涉案人笔记，返回远端回显。
func (c *Client) SavePersonNotes(ctx context.Context, req PersonNotesRequest) (*NotesPayload, error) {
	var out NotesPayload
	resp, err := c.http.R().SetContext(ctx).SetBody(req).
		Put("/api/persons/" + url.PathEscape(req.SubjectID) + "/notes")
	if err := c.decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateEvidence 创建证物。附件存在时整个请求走 multipart：
// payload 字段放 JSON，attachment 字段放二进制内容。
func (c *Client) CreateEvidence(ctx context.Context, req EvidenceUpsertRequest, att *model.Attachment) (*EvidencePayload, error) {
	var out EvidencePayload
	r := c.http.R().SetContext(ctx)
	resp, err := c.sendEvidence(r, req, att, "/api/evidence", "POST")
	if err := c.decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateEvidence 部分更新证物。
func (c *Client) UpdateEvidence(ctx context.Context, evidenceID string, req EvidenceUpsertRequest, att *model.Attachment) (*EvidencePayload, error) {
	var out EvidencePayload
	r := c.http.R().SetContext(ctx)
	resp, err := c.sendEvidence(r, req, att, "/api/evidence/"+url.PathEscape(evidenceID), "PATCH")
	if err := c.decode(resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) sendEvidence(r *resty.Request, req EvidenceUpsertRequest, att *model.Attachment, path, method string) (*resty.Response, error) {
	if att != nil {
		raw, merr := json.Marshal(req)
		if merr != nil {
			return nil, fmt.Errorf("marshal evidence payload: %w", merr)
		}
		r.SetMultipartFormData(map[string]string{"payload": string(raw)})
		r.SetMultipartField("attachment", att.Name, att.MIME, attachmentReader(att))
	} else {
		r.SetBody(req)
	}
	if method == "PATCH" {
		return r.Patch(path)
	}
	return r.Post(path)
}

// SubmitStage 提交一次取证环节记录。
// 附件（采集照片/提取文件/分析报告）随 multipart 同行；
// 载荷里的 photo_field 指向各自的 multipart 字段名。
func (c *Client) SubmitStage(ctx context.Context, req StageSubmitRequest, rec *model.StageRecord) (*StagePayload, error) {
	r := c.http.R().SetContext(ctx)

	hasFiles := false
	if rec != nil {
		for i, step := range rec.Steps {
			if step.Photo != nil {
				field := fmt.Sprintf("photo_%d", i)
				r.SetMultipartField(field, step.Photo.Name, step.Photo.MIME, attachmentReader(step.Photo))
				if i < len(req.Steps) {
					req.Steps[i].PhotoField = field
				}
				hasFiles = true
			}
		}
		if rec.File != nil {
			r.SetMultipartField("file", rec.File.Name, rec.File.MIME, attachmentReader(rec.File))
			hasFiles = true
		}
		for i := range rec.Reports {
			rep := &rec.Reports[i]
			r.SetMultipartField(fmt.Sprintf("report_%d", i), rep.Name, rep.MIME, attachmentReader(rep))
			hasFiles = true
		}
	}

	path := "/api/evidence/" + url.PathEscape(req.EvidenceID) + "/stages"
	var resp *resty.Response
	var err error
	if hasFiles {
		raw, merr := json.Marshal(req)
		if merr != nil {
			return nil, &CallError{Message: fmt.Sprintf("marshal stage payload: %v", merr)}
		}
		r.SetMultipartFormData(map[string]string{"payload": string(raw)})
		resp, err = r.Post(path)
	} else {
		resp, err = r.SetBody(req).Post(path)
	}

	var out StagePayload
	if derr := c.decode(resp, err, &out); derr != nil {
		return nil, derr
	}
	return &out, nil
}

// ExportDocument 请求远端把记录导出为文书，返回文档内容与建议文件名。
func (c *Client) ExportDocument(ctx context.Context, subjectID string) ([]byte, string, error) {
	resp, err := c.http.R().SetContext(ctx).
		Get("/api/records/" + url.PathEscape(subjectID) + "/export")
	if err != nil {
		return nil, "", &CallError{Message: err.Error()}
	}

	// 导出成功时 body 是二进制文书；失败时才是 JSON 错误载荷。
	contentType := resp.Header().Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") || resp.StatusCode() >= 300 {
		if derr := c.decode(resp, nil, nil); derr != nil {
			return nil, "", derr
		}
		return nil, "", &CallError{Message: "export returned no document", Status: resp.StatusCode()}
	}

	filename := ""
	if cd := resp.Header().Get("Content-Disposition"); cd != "" {
		if _, params, perr := mime.ParseMediaType(cd); perr == nil {
			filename = params["filename"]
		}
	}
	if filename == "" {
		filename = "record_" + subjectID + ".bin"
	}
	return resp.Body(), filename, nil
}
