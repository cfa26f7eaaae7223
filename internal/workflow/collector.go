package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"custody-desk/internal/domain/model"
)

// StageForm 是环节表单的采收契约：返回“此刻表单状态”构建出的环节记录。
// 每个环节屏各自实现（字段形态随意），提交按钮只面对这一个接口。
// 实现内部可以做异步工作（例如把文件读成内存缓冲）。
type StageForm interface {
	Harvest(ctx context.Context) (*model.StageRecord, error)
}

// FormFunc 把零参函数适配成 StageForm，便于测试和简单屏。
type FormFunc func(ctx context.Context) (*model.StageRecord, error)

func (f FormFunc) Harvest(ctx context.Context) (*model.StageRecord, error) {
	return f(ctx)
}

// Collector 持有“当前活跃的环节表单”。同一时刻只有一个环节屏可见，
// Bind 静默替换上一次绑定，不做叠放。
//
// Collector 不碰远端：它只产出值。提交流程由调用方负责——
// 把 Harvest 的结果交给同步层，确认成功后才写回实体图。
// 这样提交按钮可以围绕异步调用自行禁用/恢复，Collector 不感知网络状态。
type Collector struct {
	mu   sync.Mutex
	form StageForm
}

// NewCollector 创建空采收器。
func NewCollector() *Collector {
	return &Collector{}
}

// Bind 绑定当前环节表单，替换之前的绑定。
func (c *Collector) Bind(form StageForm) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form = form
}

// Unbind 解除绑定（环节屏关闭时调用）。
func (c *Collector) Unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form = nil
}

// Harvest 采收当前表单的提交载荷并做最终整形：
// - 记录 ID 与时间戳在采收时生成，重复提交（含重试）各自得到全新 ID；
// - 提取环节的文件大小标签在这里派生，表单不需要自己算；
// - 环节标识必须合法。
//
// 采收不改动表单状态：同一表单连采两次，除 ID/时间外内容一致。
func (c *Collector) Harvest(ctx context.Context) (*model.StageRecord, error) {
	c.mu.Lock()
	form := c.form
	c.mu.Unlock()

	if form == nil {
		return nil, fmt.Errorf("no stage form bound")
	}

	rec, err := form.Harvest(ctx)
	if err != nil {
		return nil, fmt.Errorf("harvest stage form: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("stage form returned no record")
	}
	if !rec.Stage.Valid() {
		return nil, fmt.Errorf("unsupported custody stage: %q", rec.Stage)
	}

	out := rec.Clone()
	out.ID = uuid.NewString()
	out.CreatedAt = time.Now().Unix()
	if out.Stage == model.StageExtraction && out.File != nil {
		out.FileSizeLabel = humanize.Bytes(uint64(out.File.Size))
	}
	return &out, nil
}

// EchoAnalysisFindings 从证物取证链派生分析环节的假设回显：
// 取最近一次准备环节的假设/工具配对，结论留空待分析人填写。
// 回显是只读拷贝，分析屏不允许改动假设本身。
func EchoAnalysisFindings(chain *model.CustodyChain) []model.AnalysisFinding {
	prep := chain.LatestPreparation()
	if prep == nil {
		return nil
	}
	out := make([]model.AnalysisFinding, 0, len(prep.Hypotheses))
	for _, ht := range prep.Hypotheses {
		out = append(out, model.AnalysisFinding{
			Hypothesis: ht.Hypothesis,
			Tool:       ht.Tool,
		})
	}
	return out
}
