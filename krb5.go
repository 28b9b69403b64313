package smbc

import (
	"encoding/asn1"
	"errors"
	"fmt"
	"time"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	"github.com/jcmturner/gokrb5/v8/iana/flags"
	"github.com/jcmturner/gokrb5/v8/iana/keyusage"
	"github.com/jcmturner/gokrb5/v8/messages"
	"github.com/jcmturner/gokrb5/v8/spnego"
	"github.com/jcmturner/gokrb5/v8/types"
)

// Krb5Initiator authenticates with a Kerberos service ticket.
type Krb5Initiator struct {
	Client    *client.Client
	TargetSPN string

	sessKey    types.EncryptionKey
	sessSubkey types.EncryptionKey
}

// NewKrb5Initiator logs in to the realm named by creds.Workgroup and
// targets the cifs service on host.
func NewKrb5Initiator(cfg *config.Config, creds Credentials, host string) (*Krb5Initiator, error) {
	if cfg == nil {
		return nil, errors.New("Kerberos configuration is not set")
	}

	realm := creds.Workgroup
	if realm == "" {
		realm = cfg.LibDefaults.DefaultRealm
	}

	cl := client.NewWithPassword(creds.Username, realm, creds.Password, cfg, client.DisablePAFXFAST(true))
	if err := cl.Login(); err != nil {
		return nil, fmt.Errorf("Kerberos login as %s@%s: %w", creds.Username, realm, err)
	}

	return &Krb5Initiator{Client: cl, TargetSPN: "cifs/" + host}, nil
}

// OID returns the Kerberos 5 OID.
func (ki *Krb5Initiator) OID() asn1.ObjectIdentifier {
	return asn1.ObjectIdentifier(gssapi.OIDKRB5.OID())
}

// InitSecContext obtains a service ticket and wraps it in an AP-REQ.
func (ki *Krb5Initiator) InitSecContext() ([]byte, error) {
	switch {
	case ki.Client == nil:
		return nil, errors.New("Kerberos client is not set")
	case ki.TargetSPN == "":
		return nil, errors.New("Kerberos target SPN is not set")
	}

	ticket, key, err := ki.Client.GetServiceTicket(ki.TargetSPN)
	if err != nil {
		return nil, fmt.Errorf("service ticket for %s: %w", ki.TargetSPN, err)
	}

	apReq, err := spnego.NewKRB5TokenAPREQ(ki.Client, ticket, key,
		[]int{gssapi.ContextFlagMutual, gssapi.ContextFlagConf},
		[]int{flags.APOptionMutualRequired})
	if err != nil {
		return nil, fmt.Errorf("building AP-REQ: %w", err)
	}

	out, err := apReq.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding AP-REQ: %w", err)
	}

	ki.sessKey = key
	return out, nil
}

// AcceptSecContext checks the server's AP-REP and keeps its subkey.
func (ki *Krb5Initiator) AcceptSecContext(in []byte) ([]byte, error) {
	var rep spnego.KRB5Token
	if err := rep.Unmarshal(in); err != nil {
		return nil, fmt.Errorf("decoding Kerberos token: %w", err)
	}
	if !rep.IsAPRep() {
		return nil, errors.New("Kerberos token is not an AP-REP")
	}

	plain, err := crypto.DecryptEncPart(rep.APRep.EncPart, ki.sessKey, keyusage.AP_REP_ENCPART)
	if err != nil {
		return nil, fmt.Errorf("decrypting AP-REP: %w", err)
	}

	var part messages.EncAPRepPart
	if err := part.Unmarshal(plain); err != nil {
		return nil, fmt.Errorf("decoding AP-REP: %w", err)
	}

	if skew := time.Since(part.CTime).Abs(); skew > ki.Client.Config.LibDefaults.Clockskew {
		return nil, fmt.Errorf("AP-REP clock skew %v exceeds %v", skew.Truncate(time.Second), ki.Client.Config.LibDefaults.Clockskew)
	}

	ki.sessSubkey = part.Subkey
	return []byte{}, nil
}

// Sum returns an initiator MIC token over b, or nil when one cannot be
// built.
func (ki *Krb5Initiator) Sum(b []byte) []byte {
	mic, err := gssapi.NewInitiatorMICToken(b, ki.sessSubkey)
	if err != nil {
		return nil
	}
	out, err := mic.Marshal()
	if err != nil {
		return nil
	}
	return out
}

// SessionKey returns the first 16 bytes of the session subkey, zero padded.
func (ki *Krb5Initiator) SessionKey() []byte {
	key := make([]byte, 16)
	copy(key, ki.sessSubkey.KeyValue)
	return key
}
