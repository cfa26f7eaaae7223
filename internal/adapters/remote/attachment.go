package remote

import (
	"bytes"
	"io"

	"custody-desk/internal/domain/model"
)

// attachmentReader 把内存附件包成 io.Reader 供 multipart 编码。
// 附件在采收阶段已经整体读入内存，这里不会再碰磁盘；
// 不支持断点/分块上传，上传失败由调用方重新采收后从头再来。
func attachmentReader(att *model.Attachment) io.Reader {
	return bytes.NewReader(att.Data)
}
