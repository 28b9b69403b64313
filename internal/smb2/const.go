package smb2

const MAGIC = "\xfeSMB"

// Commands
const (
	SMB2_NEGOTIATE = iota
	SMB2_SESSION_SETUP
	SMB2_LOGOFF
	SMB2_TREE_CONNECT
	SMB2_TREE_DISCONNECT
	SMB2_CREATE
	SMB2_CLOSE
	SMB2_FLUSH
	SMB2_READ
	SMB2_WRITE
	SMB2_LOCK
	SMB2_IOCTL
	SMB2_CANCEL
	SMB2_ECHO
	SMB2_QUERY_DIRECTORY
	SMB2_CHANGE_NOTIFY
	SMB2_QUERY_INFO
	SMB2_SET_INFO
	SMB2_OPLOCK_BREAK
)

// Header flags
const (
	SMB2_FLAGS_SERVER_TO_REDIR = 1 << iota
	SMB2_FLAGS_ASYNC_COMMAND
	SMB2_FLAGS_RELATED_OPERATIONS
	SMB2_FLAGS_SIGNED
)

// MessageId of unsolicited oplock break notifications.
const UnsolicitedMessageId = 0xFFFFFFFFFFFFFFFF

// Dialects
const (
	SMB202 = 0x0202
	SMB210 = 0x0210
	SMB300 = 0x0300
	SMB302 = 0x0302
	SMB311 = 0x0311
	SMB2XX = 0x02FF
)

// Security modes
const (
	SMB2_NEGOTIATE_SIGNING_ENABLED = 1 << iota
	SMB2_NEGOTIATE_SIGNING_REQUIRED
)

// Capabilities
const (
	SMB2_GLOBAL_CAP_DFS = 1 << iota
	SMB2_GLOBAL_CAP_LEASING
	SMB2_GLOBAL_CAP_LARGE_MTU
	SMB2_GLOBAL_CAP_MULTI_CHANNEL
	SMB2_GLOBAL_CAP_PERSISTENT_HANDLES
	SMB2_GLOBAL_CAP_DIRECTORY_LEASING
	SMB2_GLOBAL_CAP_ENCRYPTION
)

// Session flags
const (
	SMB2_SESSION_FLAG_IS_GUEST = 1 << iota
	SMB2_SESSION_FLAG_IS_NULL
	SMB2_SESSION_FLAG_ENCRYPT_DATA
)

// Share types
const (
	SMB2_SHARE_TYPE_DISK = 1 + iota
	SMB2_SHARE_TYPE_PIPE
	SMB2_SHARE_TYPE_PRINT
)

// Oplock levels
const (
	SMB2_OPLOCK_LEVEL_NONE      = 0x00
	SMB2_OPLOCK_LEVEL_II        = 0x01
	SMB2_OPLOCK_LEVEL_EXCLUSIVE = 0x08
	SMB2_OPLOCK_LEVEL_BATCH     = 0x09
)

// Impersonation levels
const (
	Anonymous = iota
	Identification
	Impersonation
	Delegate
)

// Access masks
const (
	FILE_READ_DATA         = 0x00000001
	FILE_LIST_DIRECTORY    = 0x00000001
	FILE_WRITE_DATA        = 0x00000002
	FILE_ADD_FILE          = 0x00000002
	FILE_APPEND_DATA       = 0x00000004
	FILE_READ_EA           = 0x00000008
	FILE_WRITE_EA          = 0x00000010
	FILE_EXECUTE           = 0x00000020
	FILE_DELETE_CHILD      = 0x00000040
	FILE_READ_ATTRIBUTES   = 0x00000080
	FILE_WRITE_ATTRIBUTES  = 0x00000100
	DELETE                 = 0x00010000
	READ_CONTROL           = 0x00020000
	WRITE_DAC              = 0x00040000
	WRITE_OWNER            = 0x00080000
	SYNCHRONIZE            = 0x00100000
	ACCESS_SYSTEM_SECURITY = 0x01000000
	MAXIMUM_ALLOWED        = 0x02000000
	GENERIC_ALL            = 0x10000000
	GENERIC_EXECUTE        = 0x20000000
	GENERIC_WRITE          = 0x40000000
	GENERIC_READ           = 0x80000000
)

// Share access
const (
	FILE_SHARE_READ = 1 << iota
	FILE_SHARE_WRITE
	FILE_SHARE_DELETE
)

// Create dispositions
const (
	FILE_SUPERSEDE = iota
	FILE_OPEN
	FILE_CREATE
	FILE_OPEN_IF
	FILE_OVERWRITE
	FILE_OVERWRITE_IF
)

// Create options
const (
	FILE_DIRECTORY_FILE          = 0x00000001
	FILE_WRITE_THROUGH           = 0x00000002
	FILE_SEQUENTIAL_ONLY         = 0x00000004
	FILE_SYNCHRONOUS_IO_NONALERT = 0x00000020
	FILE_NON_DIRECTORY_FILE      = 0x00000040
	FILE_DELETE_ON_CLOSE         = 0x00001000
	FILE_OPEN_REPARSE_POINT      = 0x00200000
)

// Create actions
const (
	FILE_SUPERSEDED = iota
	FILE_OPENED
	FILE_CREATED
	FILE_OVERWRITTEN
)

// File attributes
const (
	FILE_ATTRIBUTE_READONLY      = 0x00000001
	FILE_ATTRIBUTE_HIDDEN        = 0x00000002
	FILE_ATTRIBUTE_SYSTEM        = 0x00000004
	FILE_ATTRIBUTE_DIRECTORY     = 0x00000010
	FILE_ATTRIBUTE_ARCHIVE       = 0x00000020
	FILE_ATTRIBUTE_NORMAL        = 0x00000080
	FILE_ATTRIBUTE_REPARSE_POINT = 0x00000400
)

// Close flags
const (
	SMB2_CLOSE_FLAG_POSTQUERY_ATTRIB = 0x0001
)

// Query directory flags
const (
	SMB2_RESTART_SCANS       = 0x01
	SMB2_RETURN_SINGLE_ENTRY = 0x02
	SMB2_INDEX_SPECIFIED     = 0x04
	SMB2_REOPEN              = 0x10
)

// Info types
const (
	SMB2_0_INFO_FILE = 1 + iota
	SMB2_0_INFO_FILESYSTEM
	SMB2_0_INFO_SECURITY
	SMB2_0_INFO_QUOTA
)

// File information classes
const (
	FileDirectoryInformation     = 1
	FileBothDirectoryInformation = 3
	FileBasicInformation         = 4
	FileStandardInformation      = 5
	FileDispositionInformation   = 13
	FileAllInformation           = 18
	FileEndOfFileInformation     = 20
)

// Security information flags
const (
	OWNER_SECURITY_INFORMATION = 1 << iota
	GROUP_SECURITY_INFORMATION
	DACL_SECURITY_INFORMATION
	SACL_SECURITY_INFORMATION
)
