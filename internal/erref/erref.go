// Package erref provides the NTSTATUS values defined in [MS-ERREF] that an
// SMB2 client observes on the wire, together with their symbolic names.
//
// Only the statuses the client reacts to are listed. Anything else still
// round-trips as an NtStatus and prints as its hexadecimal value.
//
// For more information about the error codes, see:
// https://msdn.microsoft.com/en-au/library/cc704588.aspx
package erref
