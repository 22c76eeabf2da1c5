package repo

import (
	"bytes"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// SSH signatures in the format of ssh-keygen -Y sign, which is what git
// stores in gpgsig when gpg.format=ssh.
const (
	sshsigMagic     = "SSHSIG"
	sshsigVersion   = 1
	sshsigNamespace = "git"
	sshsigHashAlg   = "sha512"
	sshsigBegin     = "-----BEGIN SSH SIGNATURE-----"
	sshsigEnd       = "-----END SSH SIGNATURE-----"
	sshsigLineWidth = 70
)

// ErrBadSignature is returned when a commit signature does not verify.
var ErrBadSignature = errors.New("bad commit signature")

type sshsigSignedData struct {
	Namespace string
	Reserved  string
	HashAlg   string
	Hash      []byte
}

type sshsigBlob struct {
	Version   uint32
	PublicKey []byte
	Namespace string
	Reserved  string
	HashAlg   string
	Signature []byte
}

func sshsigMessage(payload []byte) []byte {
	sum := sha512.Sum512(payload)
	return append([]byte(sshsigMagic), ssh.Marshal(sshsigSignedData{
		Namespace: sshsigNamespace,
		HashAlg:   sshsigHashAlg,
		Hash:      sum[:],
	})...)
}

// SSHSigner returns a CommitSigner producing armored SSH signatures with
// signer. RSA keys sign with rsa-sha2-512.
func SSHSigner(signer ssh.Signer) CommitSigner {
	return func(payload []byte) (string, error) {
		msg := sshsigMessage(payload)
		var (
			sig *ssh.Signature
			err error
		)
		if as, ok := signer.(ssh.AlgorithmSigner); ok && signer.PublicKey().Type() == ssh.KeyAlgoRSA {
			sig, err = as.SignWithAlgorithm(rand.Reader, msg, ssh.KeyAlgoRSASHA512)
		} else {
			sig, err = signer.Sign(rand.Reader, msg)
		}
		if err != nil {
			return "", err
		}
		blob := append([]byte(sshsigMagic), ssh.Marshal(sshsigBlob{
			Version:   sshsigVersion,
			PublicKey: signer.PublicKey().Marshal(),
			Namespace: sshsigNamespace,
			HashAlg:   sshsigHashAlg,
			Signature: ssh.Marshal(sig),
		})...)
		return armorSSHSig(blob), nil
	}
}

func armorSSHSig(blob []byte) string {
	enc := base64.StdEncoding.EncodeToString(blob)
	var b strings.Builder
	b.WriteString(sshsigBegin)
	b.WriteByte('\n')
	for len(enc) > sshsigLineWidth {
		b.WriteString(enc[:sshsigLineWidth])
		b.WriteByte('\n')
		enc = enc[sshsigLineWidth:]
	}
	b.WriteString(enc)
	b.WriteByte('\n')
	b.WriteString(sshsigEnd)
	b.WriteByte('\n')
	return b.String()
}

// NewSSHSigner loads a private key and returns a signer for it. An empty
// keyPath picks the first of ~/.ssh/id_ed25519, id_ecdsa and id_rsa. The
// resolved key path is returned alongside.
func NewSSHSigner(keyPath string) (CommitSigner, string, error) {
	resolvedPath, err := resolveSigningKeyPath(keyPath)
	if err != nil {
		return nil, "", err
	}
	raw, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, "", fmt.Errorf("read signing key %q: %w", resolvedPath, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, "", fmt.Errorf("parse signing key %q: %w", resolvedPath, err)
	}
	return SSHSigner(signer), resolvedPath, nil
}

// VerifySSHSignature checks an armored signature over payload and returns
// the public key that made it. Callers decide whether that key is trusted.
func VerifySSHSignature(payload []byte, armored string) (ssh.PublicKey, error) {
	blob, err := dearmorSSHSig(armored)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(blob, []byte(sshsigMagic)) {
		return nil, fmt.Errorf("%w: missing %s preamble", ErrBadSignature, sshsigMagic)
	}
	var sb sshsigBlob
	if err := ssh.Unmarshal(blob[len(sshsigMagic):], &sb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if sb.Version != sshsigVersion || sb.Namespace != sshsigNamespace || sb.HashAlg != sshsigHashAlg {
		return nil, fmt.Errorf("%w: unsupported version %d namespace %q hash %q",
			ErrBadSignature, sb.Version, sb.Namespace, sb.HashAlg)
	}
	pub, err := ssh.ParsePublicKey(sb.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrBadSignature, err)
	}
	sig := new(ssh.Signature)
	if err := ssh.Unmarshal(sb.Signature, sig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if err := pub.Verify(sshsigMessage(payload), sig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return pub, nil
}

func dearmorSSHSig(armored string) ([]byte, error) {
	body := strings.TrimSpace(armored)
	body, ok := strings.CutPrefix(body, sshsigBegin)
	if !ok {
		return nil, fmt.Errorf("%w: not an SSH signature", ErrBadSignature)
	}
	body, ok = strings.CutSuffix(body, sshsigEnd)
	if !ok {
		return nil, fmt.Errorf("%w: unterminated SSH signature", ErrBadSignature)
	}
	blob, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(body), ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return blob, nil
}

func resolveSigningKeyPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		return expandUserPath(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	candidates := []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
	for _, candidate := range candidates {
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no default SSH private key found in ~/.ssh (id_ed25519, id_ecdsa, id_rsa)")
}

func expandUserPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
