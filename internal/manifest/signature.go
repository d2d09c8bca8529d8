package manifest

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// VerifyDetachedSignature checks that data carries a valid armored detached
// PGP signature from a key in the armored keyring.
func VerifyDetachedSignature(data []byte, armoredSig io.Reader, armoredKeyRing io.Reader) error {
	keyring, err := openpgp.ReadArmoredKeyRing(armoredKeyRing)
	if err != nil {
		return fmt.Errorf("reading keyring: %w", err)
	}
	if _, err := openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(data), armoredSig, nil); err != nil {
		return fmt.Errorf("manifest signature: %w", err)
	}
	return nil
}
