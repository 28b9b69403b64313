package smbc

import (
	"errors"
	"fmt"
	"os"

	"github.com/cloudsoda/sddl"

	"github.com/cloudsoda/smbc/internal/smb2"
)

// SecurityInformationRequestFlags selects the parts of a security
// descriptor to query or replace.
type SecurityInformationRequestFlags uint32

const (
	OwnerSecurityInformation SecurityInformationRequestFlags = 1 << iota // owner SID
	GroupSecurityInformation                                             // primary group SID
	DACLSecurityInformation                                              // discretionary ACL
	SACLSecurityInformation                                              // system ACL, needs ACCESS_SYSTEM_SECURITY
)

var errNoSecurityInformation = fmt.Errorf("%w: no security information requested", ErrInvalidArgument)

// readAccess is the access mask needed to query the requested parts.
func (f SecurityInformationRequestFlags) readAccess() uint32 {
	access := uint32(smb2.READ_CONTROL)
	if f&SACLSecurityInformation != 0 {
		access |= smb2.ACCESS_SYSTEM_SECURITY
	}
	return access
}

// writeAccess is the access mask needed to replace the requested parts.
func (f SecurityInformationRequestFlags) writeAccess() uint32 {
	access := uint32(smb2.WRITE_DAC)
	if f&(OwnerSecurityInformation|GroupSecurityInformation) != 0 {
		access |= smb2.WRITE_OWNER
	}
	if f&SACLSecurityInformation != 0 {
		access |= smb2.ACCESS_SYSTEM_SECURITY
	}
	return access
}

// SecurityDescriptorEncoder sends a parsed descriptor in self-relative form.
type SecurityDescriptorEncoder struct {
	*sddl.SecurityDescriptor
}

var _ smb2.Encoder = (*SecurityDescriptorEncoder)(nil)

func (e *SecurityDescriptorEncoder) Encode(p []byte) { copy(p, e.Binary()) }

func (e *SecurityDescriptorEncoder) Size() int { return len(e.Binary()) }

// parseSecurityDescriptor decodes a descriptor returned for name. A
// malformed one is reported as ErrIO.
func parseSecurityDescriptor(name string, data []byte) (*sddl.SecurityDescriptor, error) {
	sd, err := sddl.FromBinary(data)
	if err != nil {
		err = errors.Join(ErrIO, fmt.Errorf("decoding security descriptor: %w", err))
		return nil, &os.PathError{Op: "secinfo", Path: name, Err: err}
	}
	return sd, nil
}
