package pdf

import "fmt"

// エラーコード一覧。APIレスポンスとジョブ失敗理由の双方で使用します。
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeInvalidRange    = "INVALID_RANGE"
	CodeInvalidOption   = "INVALID_OPTION"
	CodeDocumentInvalid = "DOCUMENT_INVALID"
	CodeMergeFailed     = "MERGE_FAILED"
	CodeSplitFailed     = "SPLIT_FAILED"
	CodeNotFound        = "NOT_FOUND"
	CodeNotReady        = "NOT_READY"
	CodeOutOfRange      = "OUT_OF_RANGE"
	CodeStorage         = "STORAGE_ERROR"
)

// Error はコード付きのアプリケーションエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError はコード付きエラーを作成します。
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func newError(code, message string, err error) *Error {
	return NewError(code, message, err)
}
