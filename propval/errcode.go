package propval

import "fmt"

// ErrorCode is a MAPI status code. It is both the payload of PT_ERROR values
// and the ReturnValue of ROP responses.
type ErrorCode uint32

const (
	CodeSuccess               ErrorCode = 0x00000000
	CodeErrorsReturned        ErrorCode = 0x00040380
	CodePositionChanged       ErrorCode = 0x00040481
	CodeApproxCount           ErrorCode = 0x00040482
	CodePartialCompletion     ErrorCode = 0x00040680
	CodeRpcFormat             ErrorCode = 0x000004B6
	CodeNullObject            ErrorCode = 0x000004B9
	CodeInterfaceNotSupported ErrorCode = 0x80004002
	CodeCallFailed            ErrorCode = 0x80004005
	CodeNoAccess              ErrorCode = 0x80070005
	CodeNotEnoughMemory       ErrorCode = 0x8007000E
	CodeInvalidParameter      ErrorCode = 0x80070057
	CodeNoSupport             ErrorCode = 0x80040102
	CodeBadCharWidth          ErrorCode = 0x80040103
	CodeStringTooLong         ErrorCode = 0x80040105
	CodeUnknownFlags          ErrorCode = 0x80040106
	CodeInvalidEntryID        ErrorCode = 0x80040107
	CodeInvalidObject         ErrorCode = 0x80040108
	CodeObjectChanged         ErrorCode = 0x80040109
	CodeObjectDeleted         ErrorCode = 0x8004010A
	CodeBusy                  ErrorCode = 0x8004010B
	CodeNotEnoughDisk         ErrorCode = 0x8004010D
	CodeNotEnoughResources    ErrorCode = 0x8004010E
	CodeNotFound              ErrorCode = 0x8004010F
	CodeVersion               ErrorCode = 0x80040110
	CodeLogonFailed           ErrorCode = 0x80040111
	CodeUserCancel            ErrorCode = 0x80040113
	CodeNetworkError          ErrorCode = 0x80040115
	CodeDiskError             ErrorCode = 0x80040116
	CodeTooComplex            ErrorCode = 0x80040117
	CodeCorruptData           ErrorCode = 0x8004011B
	CodeEndOfSession          ErrorCode = 0x80040200
	CodeUnknownEntryID        ErrorCode = 0x80040201
	CodeMissingRequiredColumn ErrorCode = 0x80040202
	CodeBadValue              ErrorCode = 0x80040301
	CodeInvalidType           ErrorCode = 0x80040302
	CodeTypeNoSupport         ErrorCode = 0x80040303
	CodeUnexpectedType        ErrorCode = 0x80040304
	CodeTooBig                ErrorCode = 0x80040305
	CodeUnexpectedID          ErrorCode = 0x80040307
	CodeUnableToComplete      ErrorCode = 0x80040400
	CodeTimeout               ErrorCode = 0x80040401
	CodeTableEmpty            ErrorCode = 0x80040402
	CodeTableTooBig           ErrorCode = 0x80040403
	CodeInvalidBookmark       ErrorCode = 0x80040405
	CodeNotInitialized        ErrorCode = 0x80040605
	CodeNoRecipients          ErrorCode = 0x80040607
	CodeAmbiguousRecipient    ErrorCode = 0x80040700
)

var errorCodeNames = map[ErrorCode]string{
	CodeSuccess:               "MAPI_E_SUCCESS",
	CodeErrorsReturned:        "MAPI_W_ERRORS_RETURNED",
	CodePositionChanged:       "MAPI_W_POSITION_CHANGED",
	CodeApproxCount:           "MAPI_W_APPROX_COUNT",
	CodePartialCompletion:     "MAPI_W_PARTIAL_COMPLETION",
	CodeRpcFormat:             "ecRpcFormat",
	CodeNullObject:            "ecNullObject",
	CodeInterfaceNotSupported: "MAPI_E_INTERFACE_NOT_SUPPORTED",
	CodeCallFailed:            "MAPI_E_CALL_FAILED",
	CodeNoAccess:              "MAPI_E_NO_ACCESS",
	CodeNotEnoughMemory:       "MAPI_E_NOT_ENOUGH_MEMORY",
	CodeInvalidParameter:      "MAPI_E_INVALID_PARAMETER",
	CodeNoSupport:             "MAPI_E_NO_SUPPORT",
	CodeBadCharWidth:          "MAPI_E_BAD_CHARWIDTH",
	CodeStringTooLong:         "MAPI_E_STRING_TOO_LONG",
	CodeUnknownFlags:          "MAPI_E_UNKNOWN_FLAGS",
	CodeInvalidEntryID:        "MAPI_E_INVALID_ENTRYID",
	CodeInvalidObject:         "MAPI_E_INVALID_OBJECT",
	CodeObjectChanged:         "MAPI_E_OBJECT_CHANGED",
	CodeObjectDeleted:         "MAPI_E_OBJECT_DELETED",
	CodeBusy:                  "MAPI_E_BUSY",
	CodeNotEnoughDisk:         "MAPI_E_NOT_ENOUGH_DISK",
	CodeNotEnoughResources:    "MAPI_E_NOT_ENOUGH_RESOURCES",
	CodeNotFound:              "MAPI_E_NOT_FOUND",
	CodeVersion:               "MAPI_E_VERSION",
	CodeLogonFailed:           "MAPI_E_LOGON_FAILED",
	CodeUserCancel:            "MAPI_E_USER_CANCEL",
	CodeNetworkError:          "MAPI_E_NETWORK_ERROR",
	CodeDiskError:             "MAPI_E_DISK_ERROR",
	CodeTooComplex:            "MAPI_E_TOO_COMPLEX",
	CodeCorruptData:           "MAPI_E_CORRUPT_DATA",
	CodeEndOfSession:          "MAPI_E_END_OF_SESSION",
	CodeUnknownEntryID:        "MAPI_E_UNKNOWN_ENTRYID",
	CodeMissingRequiredColumn: "MAPI_E_MISSING_REQUIRED_COLUMN",
	CodeBadValue:              "MAPI_E_BAD_VALUE",
	CodeInvalidType:           "MAPI_E_INVALID_TYPE",
	CodeTypeNoSupport:         "MAPI_E_TYPE_NO_SUPPORT",
	CodeUnexpectedType:        "MAPI_E_UNEXPECTED_TYPE",
	CodeTooBig:                "MAPI_E_TOO_BIG",
	CodeUnexpectedID:          "MAPI_E_UNEXPECTED_ID",
	CodeUnableToComplete:      "MAPI_E_UNABLE_TO_COMPLETE",
	CodeTimeout:               "MAPI_E_TIMEOUT",
	CodeTableEmpty:            "MAPI_E_TABLE_EMPTY",
	CodeTableTooBig:           "MAPI_E_TABLE_TOO_BIG",
	CodeInvalidBookmark:       "MAPI_E_INVALID_BOOKMARK",
	CodeNotInitialized:        "MAPI_E_NOT_INITIALIZED",
	CodeNoRecipients:          "MAPI_E_NO_RECIPIENTS",
	CodeAmbiguousRecipient:    "MAPI_E_AMBIGUOUS_RECIP",
}

// IsWarning reports whether c is a success code carrying a warning
// (severity bit clear, non-zero).
func (c ErrorCode) IsWarning() bool {
	return c != CodeSuccess && c&0x80000000 == 0 && c&0xFFFF0000 != 0
}

// Failed reports whether c denotes a failure.
func (c ErrorCode) Failed() bool {
	return c != CodeSuccess && !c.IsWarning()
}

func (c ErrorCode) String() string {
	if s, ok := errorCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("0x%08X", uint32(c))
}
