package models

import "fmt"

// CallErrorCode, call signal relay'in başlatan bağlantıya döndüğü hata kodu.
type CallErrorCode string

const (
	CallErrChatNotFound     CallErrorCode = "chat_not_found"
	CallErrBlockedByTarget  CallErrorCode = "blocked_by_target"
	CallErrYouBlockedTarget CallErrorCode = "you_blocked_target"
	CallErrCallSetupFailed  CallErrorCode = "call_setup_failed"
)

// CallRelayError, relay başarısız olduğunda dönen tipli hata.
// Err, call_setup_failed durumunda altta yatan altyapı hatasıdır.
type CallRelayError struct {
	Code CallErrorCode
	Err  error
}

func (e *CallRelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("call relay: %s: %v", e.Code, e.Err)
	}
	return "call relay: " + string(e.Code)
}

func (e *CallRelayError) Unwrap() error {
	return e.Err
}
