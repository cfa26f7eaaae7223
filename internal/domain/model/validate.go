package model

import (
	"errors"
	"fmt"
	"strings"
)

// 校验错误在远端调用之前、本地变更之前抛出，调用方可直接挂到表单字段上。
var (
	// ErrIdentityPairing 表示姓名与身份分类的配对不成立：
	// Unknown 必须且只能搭配空身份；已知姓名必须有身份分类。
	ErrIdentityPairing = errors.New("person name/status pairing violated")

	// ErrEvidenceNumberMode 表示“系统编号”与“手工编号”两种模式同时出现或都缺失。
	ErrEvidenceNumberMode = errors.New("evidence number mode conflict")
)

// ValidatePersonIdentity 校验涉案人的姓名/身份配对不变量。
// name == Unknown 当且仅当 status 为空。
func ValidatePersonIdentity(name string, status PersonStatus) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrIdentityPairing)
	}
	if name == UnknownPersonName {
		if status != "" {
			return fmt.Errorf("%w: unknown person must not carry a status", ErrIdentityPairing)
		}
		return nil
	}
	if status == "" {
		return fmt.Errorf("%w: named person requires a status", ErrIdentityPairing)
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unsupported status %q", ErrIdentityPairing, status)
	}
	return nil
}

// ValidateEvidenceNumber 校验证物编号模式：
// 自动编号与手工编号互斥，创建时必须且只能选择其一。
func ValidateEvidenceNumber(manualNumber string, autoNumber bool) error {
	manual := strings.TrimSpace(manualNumber) != ""
	if manual && autoNumber {
		return fmt.Errorf("%w: manual number given while auto mode requested", ErrEvidenceNumberMode)
	}
	if !manual && !autoNumber {
		return fmt.Errorf("%w: either a manual number or auto mode is required", ErrEvidenceNumberMode)
	}
	return nil
}
