package smb2

import (
	"fmt"
	"strings"

	"github.com/cloudsoda/smbc/internal/erref"
)

// CommandName maps SMB2 command codes to their string representations
var CommandName = map[uint16]string{
	SMB2_NEGOTIATE:       "NEGOTIATE",
	SMB2_SESSION_SETUP:   "SESSION_SETUP",
	SMB2_LOGOFF:          "LOGOFF",
	SMB2_TREE_CONNECT:    "TREE_CONNECT",
	SMB2_TREE_DISCONNECT: "TREE_DISCONNECT",
	SMB2_CREATE:          "CREATE",
	SMB2_CLOSE:           "CLOSE",
	SMB2_FLUSH:           "FLUSH",
	SMB2_READ:            "READ",
	SMB2_WRITE:           "WRITE",
	SMB2_LOCK:            "LOCK",
	SMB2_IOCTL:           "IOCTL",
	SMB2_CANCEL:          "CANCEL",
	SMB2_ECHO:            "ECHO",
	SMB2_QUERY_DIRECTORY: "QUERY_DIRECTORY",
	SMB2_CHANGE_NOTIFY:   "CHANGE_NOTIFY",
	SMB2_QUERY_INFO:      "QUERY_INFO",
	SMB2_SET_INFO:        "SET_INFO",
	SMB2_OPLOCK_BREAK:    "OPLOCK_BREAK",
}

// GetCommandName returns the string representation of an SMB2 command code
func GetCommandName(command uint16) string {
	if name, ok := CommandName[command]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_0x%04X", command)
}

// GetStatusName returns the string representation of an NT status code
func GetStatusName(status uint32) string {
	return erref.NtStatus(status).String()
}

// DumpPacket dumps a packet as rows of 32 bits, prefixing every row after
// the first with indent.
func DumpPacket(pkt []byte, indent string) string {
	if len(pkt) == 0 {
		return ""
	}

	var b strings.Builder
	for row := 0; len(pkt) > 0; row++ {
		n := min(len(pkt), 4)
		cells := pkt[:n]
		pkt = pkt[n:]

		padded := make([]byte, 4)
		copy(padded, cells)

		fmt.Fprintf(&b, "%4d [0x%04X]: 0x%X\t|", row, row*4, padded)
		for _, c := range cells {
			fmt.Fprintf(&b, " %08b", c)
		}
		if len(pkt) > 0 {
			b.WriteString("\n")
			b.WriteString(indent)
		}
	}
	return b.String()
}
