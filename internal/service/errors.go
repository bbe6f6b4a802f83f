package service

import "errors"

// 座位引擎的封闭错误码集合，gateway 按 code 原样回给发起方。
const (
	CodePartyNotFound       = "PartyNotFound"
	CodeSeatNotFound        = "SeatNotFound"
	CodeSeatLocked          = "SeatLocked"
	CodeSeatOccupied        = "SeatOccupied"
	CodeHostSeatCannotLeave = "HostSeatCannotLeave"
	CodeForbidden           = "Forbidden"
	CodeValidationError     = "ValidationError"
	CodeNotJoined           = "NotJoined"
	CodeSyncFailed          = "SyncFailed"
	CodeInternalError       = "InternalError"
)

// SeatError 是带码的业务错误；其余一切错误一律按 InternalError 处理。
type SeatError struct {
	Code    string
	Message string
}

func (e *SeatError) Error() string { return e.Code + ": " + e.Message }

var (
	ErrPartyNotFound       = &SeatError{CodePartyNotFound, "party not found"}
	ErrSeatNotFound        = &SeatError{CodeSeatNotFound, "seat not found"}
	ErrSeatLocked          = &SeatError{CodeSeatLocked, "seat is locked"}
	ErrSeatOccupied        = &SeatError{CodeSeatOccupied, "seat already occupied"}
	ErrHostSeatCannotLeave = &SeatError{CodeHostSeatCannotLeave, "host seat cannot be vacated without transfer"}
	ErrForbidden           = &SeatError{CodeForbidden, "only host can perform this action"}
	ErrNotSeated           = &SeatError{CodeSeatNotFound, "user not seated"}
	ErrSelfMuteForbidden   = &SeatError{CodeForbidden, "you cannot change mute yourself"}
)

// AsSeatError 在边界处做穷举匹配用。
func AsSeatError(err error) (*SeatError, bool) {
	var se *SeatError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
