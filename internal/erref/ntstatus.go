package erref

import "fmt"

type NtStatus uint32

const (
	STATUS_SUCCESS                  NtStatus = 0x00000000
	STATUS_PENDING                  NtStatus = 0x00000103
	STATUS_NOTIFY_CLEANUP           NtStatus = 0x0000010B
	STATUS_NOTIFY_ENUM_DIR          NtStatus = 0x0000010C
	STATUS_BUFFER_OVERFLOW          NtStatus = 0x80000005
	STATUS_NO_MORE_FILES            NtStatus = 0x80000006
	STATUS_STOPPED_ON_SYMLINK       NtStatus = 0x8000002D
	STATUS_UNSUCCESSFUL             NtStatus = 0xC0000001
	STATUS_NOT_IMPLEMENTED          NtStatus = 0xC0000002
	STATUS_INFO_LENGTH_MISMATCH     NtStatus = 0xC0000004
	STATUS_INVALID_HANDLE           NtStatus = 0xC0000008
	STATUS_INVALID_PARAMETER        NtStatus = 0xC000000D
	STATUS_NO_SUCH_DEVICE           NtStatus = 0xC000000E
	STATUS_NO_SUCH_FILE             NtStatus = 0xC000000F
	STATUS_INVALID_DEVICE_REQUEST   NtStatus = 0xC0000010
	STATUS_END_OF_FILE              NtStatus = 0xC0000011
	STATUS_MORE_PROCESSING_REQUIRED NtStatus = 0xC0000016
	STATUS_ACCESS_DENIED            NtStatus = 0xC0000022
	STATUS_BUFFER_TOO_SMALL         NtStatus = 0xC0000023
	STATUS_OBJECT_NAME_INVALID      NtStatus = 0xC0000033
	STATUS_OBJECT_NAME_NOT_FOUND    NtStatus = 0xC0000034
	STATUS_OBJECT_NAME_COLLISION    NtStatus = 0xC0000035
	STATUS_OBJECT_PATH_INVALID      NtStatus = 0xC0000039
	STATUS_OBJECT_PATH_NOT_FOUND    NtStatus = 0xC000003A
	STATUS_OBJECT_PATH_SYNTAX_BAD   NtStatus = 0xC000003B
	STATUS_SHARING_VIOLATION        NtStatus = 0xC0000043
	STATUS_DELETE_PENDING           NtStatus = 0xC0000056
	STATUS_LOCK_NOT_GRANTED         NtStatus = 0xC0000055
	STATUS_NO_SUCH_USER             NtStatus = 0xC0000064
	STATUS_WRONG_PASSWORD           NtStatus = 0xC000006A
	STATUS_LOGON_FAILURE            NtStatus = 0xC000006D
	STATUS_ACCOUNT_RESTRICTION      NtStatus = 0xC000006E
	STATUS_INVALID_LOGON_HOURS      NtStatus = 0xC000006F
	STATUS_PASSWORD_EXPIRED         NtStatus = 0xC0000071
	STATUS_ACCOUNT_DISABLED         NtStatus = 0xC0000072
	STATUS_RANGE_NOT_LOCKED         NtStatus = 0xC000007E
	STATUS_DISK_FULL                NtStatus = 0xC000007F
	STATUS_INSUFFICIENT_RESOURCES   NtStatus = 0xC000009A
	STATUS_INSTANCE_NOT_AVAILABLE   NtStatus = 0xC00000AB
	STATUS_PIPE_NOT_AVAILABLE       NtStatus = 0xC00000AC
	STATUS_INVALID_PIPE_STATE       NtStatus = 0xC00000AD
	STATUS_PIPE_BUSY                NtStatus = 0xC00000AE
	STATUS_PIPE_DISCONNECTED        NtStatus = 0xC00000B0
	STATUS_PIPE_CLOSING             NtStatus = 0xC00000B1
	STATUS_FILE_IS_A_DIRECTORY      NtStatus = 0xC00000BA
	STATUS_NOT_SUPPORTED            NtStatus = 0xC00000BB
	STATUS_BAD_NETWORK_PATH         NtStatus = 0xC00000BE
	STATUS_NETWORK_ACCESS_DENIED    NtStatus = 0xC00000CA
	STATUS_BAD_NETWORK_NAME         NtStatus = 0xC00000CC
	STATUS_REQUEST_NOT_ACCEPTED     NtStatus = 0xC00000D0
	STATUS_NO_SUCH_DOMAIN           NtStatus = 0xC00000DF
	STATUS_DIRECTORY_NOT_EMPTY      NtStatus = 0xC0000101
	STATUS_NOT_A_DIRECTORY          NtStatus = 0xC0000103
	STATUS_CANCELLED                NtStatus = 0xC0000120
	STATUS_LOGON_TYPE_NOT_GRANTED   NtStatus = 0xC000015B
	STATUS_ACCOUNT_EXPIRED          NtStatus = 0xC0000193
	STATUS_TOO_MANY_OPENED_FILES    NtStatus = 0xC000011F
	STATUS_FILE_CLOSED              NtStatus = 0xC0000128
	STATUS_ACCOUNT_LOCKED_OUT       NtStatus = 0xC0000234
	STATUS_USER_SESSION_DELETED     NtStatus = 0xC0000203
	STATUS_NETWORK_SESSION_EXPIRED  NtStatus = 0xC000035C
)

var ntStatusStrings = map[NtStatus]string{
	STATUS_SUCCESS:                  "STATUS_SUCCESS",
	STATUS_PENDING:                  "STATUS_PENDING",
	STATUS_NOTIFY_CLEANUP:           "STATUS_NOTIFY_CLEANUP",
	STATUS_NOTIFY_ENUM_DIR:          "STATUS_NOTIFY_ENUM_DIR",
	STATUS_BUFFER_OVERFLOW:          "STATUS_BUFFER_OVERFLOW",
	STATUS_NO_MORE_FILES:            "STATUS_NO_MORE_FILES",
	STATUS_STOPPED_ON_SYMLINK:       "STATUS_STOPPED_ON_SYMLINK",
	STATUS_UNSUCCESSFUL:             "STATUS_UNSUCCESSFUL",
	STATUS_NOT_IMPLEMENTED:          "STATUS_NOT_IMPLEMENTED",
	STATUS_INFO_LENGTH_MISMATCH:     "STATUS_INFO_LENGTH_MISMATCH",
	STATUS_INVALID_HANDLE:           "STATUS_INVALID_HANDLE",
	STATUS_INVALID_PARAMETER:        "STATUS_INVALID_PARAMETER",
	STATUS_NO_SUCH_DEVICE:           "STATUS_NO_SUCH_DEVICE",
	STATUS_NO_SUCH_FILE:             "STATUS_NO_SUCH_FILE",
	STATUS_INVALID_DEVICE_REQUEST:   "STATUS_INVALID_DEVICE_REQUEST",
	STATUS_END_OF_FILE:              "STATUS_END_OF_FILE",
	STATUS_MORE_PROCESSING_REQUIRED: "STATUS_MORE_PROCESSING_REQUIRED",
	STATUS_ACCESS_DENIED:            "STATUS_ACCESS_DENIED",
	STATUS_BUFFER_TOO_SMALL:         "STATUS_BUFFER_TOO_SMALL",
	STATUS_OBJECT_NAME_INVALID:      "STATUS_OBJECT_NAME_INVALID",
	STATUS_OBJECT_NAME_NOT_FOUND:    "STATUS_OBJECT_NAME_NOT_FOUND",
	STATUS_OBJECT_NAME_COLLISION:    "STATUS_OBJECT_NAME_COLLISION",
	STATUS_OBJECT_PATH_INVALID:      "STATUS_OBJECT_PATH_INVALID",
	STATUS_OBJECT_PATH_NOT_FOUND:    "STATUS_OBJECT_PATH_NOT_FOUND",
	STATUS_OBJECT_PATH_SYNTAX_BAD:   "STATUS_OBJECT_PATH_SYNTAX_BAD",
	STATUS_SHARING_VIOLATION:        "STATUS_SHARING_VIOLATION",
	STATUS_DELETE_PENDING:           "STATUS_DELETE_PENDING",
	STATUS_LOCK_NOT_GRANTED:         "STATUS_LOCK_NOT_GRANTED",
	STATUS_NO_SUCH_USER:             "STATUS_NO_SUCH_USER",
	STATUS_WRONG_PASSWORD:           "STATUS_WRONG_PASSWORD",
	STATUS_LOGON_FAILURE:            "STATUS_LOGON_FAILURE",
	STATUS_ACCOUNT_RESTRICTION:      "STATUS_ACCOUNT_RESTRICTION",
	STATUS_INVALID_LOGON_HOURS:      "STATUS_INVALID_LOGON_HOURS",
	STATUS_PASSWORD_EXPIRED:         "STATUS_PASSWORD_EXPIRED",
	STATUS_ACCOUNT_DISABLED:         "STATUS_ACCOUNT_DISABLED",
	STATUS_RANGE_NOT_LOCKED:         "STATUS_RANGE_NOT_LOCKED",
	STATUS_DISK_FULL:                "STATUS_DISK_FULL",
	STATUS_INSUFFICIENT_RESOURCES:   "STATUS_INSUFFICIENT_RESOURCES",
	STATUS_INSTANCE_NOT_AVAILABLE:   "STATUS_INSTANCE_NOT_AVAILABLE",
	STATUS_PIPE_NOT_AVAILABLE:       "STATUS_PIPE_NOT_AVAILABLE",
	STATUS_INVALID_PIPE_STATE:       "STATUS_INVALID_PIPE_STATE",
	STATUS_PIPE_BUSY:                "STATUS_PIPE_BUSY",
	STATUS_PIPE_DISCONNECTED:        "STATUS_PIPE_DISCONNECTED",
	STATUS_PIPE_CLOSING:             "STATUS_PIPE_CLOSING",
	STATUS_FILE_IS_A_DIRECTORY:      "STATUS_FILE_IS_A_DIRECTORY",
	STATUS_NOT_SUPPORTED:            "STATUS_NOT_SUPPORTED",
	STATUS_BAD_NETWORK_PATH:         "STATUS_BAD_NETWORK_PATH",
	STATUS_NETWORK_ACCESS_DENIED:    "STATUS_NETWORK_ACCESS_DENIED",
	STATUS_BAD_NETWORK_NAME:         "STATUS_BAD_NETWORK_NAME",
	STATUS_REQUEST_NOT_ACCEPTED:     "STATUS_REQUEST_NOT_ACCEPTED",
	STATUS_NO_SUCH_DOMAIN:           "STATUS_NO_SUCH_DOMAIN",
	STATUS_DIRECTORY_NOT_EMPTY:      "STATUS_DIRECTORY_NOT_EMPTY",
	STATUS_NOT_A_DIRECTORY:          "STATUS_NOT_A_DIRECTORY",
	STATUS_CANCELLED:                "STATUS_CANCELLED",
	STATUS_LOGON_TYPE_NOT_GRANTED:   "STATUS_LOGON_TYPE_NOT_GRANTED",
	STATUS_ACCOUNT_EXPIRED:          "STATUS_ACCOUNT_EXPIRED",
	STATUS_TOO_MANY_OPENED_FILES:    "STATUS_TOO_MANY_OPENED_FILES",
	STATUS_FILE_CLOSED:              "STATUS_FILE_CLOSED",
	STATUS_ACCOUNT_LOCKED_OUT:       "STATUS_ACCOUNT_LOCKED_OUT",
	STATUS_USER_SESSION_DELETED:     "STATUS_USER_SESSION_DELETED",
	STATUS_NETWORK_SESSION_EXPIRED:  "STATUS_NETWORK_SESSION_EXPIRED",
}

func (e NtStatus) String() string {
	if s, ok := ntStatusStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("0x%08X", uint32(e))
}

// IsError reports whether the severity bits of e denote an error.
func (e NtStatus) IsError() bool {
	return e>>30 == 3
}
