package smbc

import (
	"github.com/cloudsoda/smbc/internal/smb2"
)

// client

// The client speaks SMB 2.1 only and asks for no optional capabilities;
// without LARGE_MTU every request is charged a single credit.
const (
	clientDialect      = smb2.SMB210
	clientCapabilities = 0
)

const (
	clientMaxCreditBalance = 128
)

// Reads, writes and directory queries never ask for more than one credit's
// worth of payload.
const singleCreditMaxPayloadSize = 64 * 1024

// clientMaxAuthAttempts bounds SESSION_SETUP attempts, and so the number of
// times a CredentialResolver is consulted.
const clientMaxAuthAttempts = 2
