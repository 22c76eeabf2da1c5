package repo

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func newEd25519Signer(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("NewSignerFromKey: %v", err)
	}
	return signer
}

func TestSSHSigner_SignAndVerify(t *testing.T) {
	signer := newEd25519Signer(t)
	payload := []byte("tree abc\n\nmessage\n")

	armored, err := SSHSigner(signer)(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.HasPrefix(armored, "-----BEGIN SSH SIGNATURE-----\n") ||
		!strings.HasSuffix(armored, "-----END SSH SIGNATURE-----\n") {
		t.Fatalf("armor = %q", armored)
	}
	for _, line := range strings.Split(strings.TrimSpace(armored), "\n") {
		if len(line) > 70 {
			t.Errorf("armored line longer than 70 columns: %q", line)
		}
	}

	pub, err := VerifySSHSignature(payload, armored)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !bytes.Equal(pub.Marshal(), signer.PublicKey().Marshal()) {
		t.Error("verified key differs from signing key")
	}

	if _, err := VerifySSHSignature([]byte("tampered"), armored); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered payload: err = %v, want ErrBadSignature", err)
	}
	if _, err := VerifySSHSignature(payload, "not a signature"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("garbage signature: err = %v, want ErrBadSignature", err)
	}
}

func TestSSHSigner_RSAUsesSHA512(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(key)
	if err != nil {
		t.Fatalf("NewSignerFromKey: %v", err)
	}
	payload := []byte("payload")
	armored, err := SSHSigner(signer)(payload)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	blob, err := dearmorSSHSig(armored)
	if err != nil {
		t.Fatalf("dearmor: %v", err)
	}
	var sb sshsigBlob
	if err := ssh.Unmarshal(blob[len(sshsigMagic):], &sb); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var sig ssh.Signature
	if err := ssh.Unmarshal(sb.Signature, &sig); err != nil {
		t.Fatalf("unmarshal signature: %v", err)
	}
	if sig.Format != ssh.KeyAlgoRSASHA512 {
		t.Errorf("signature format = %q, want %q", sig.Format, ssh.KeyAlgoRSASHA512)
	}
	if _, err := VerifySSHSignature(payload, armored); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestCommit_SignedWithKeyFile(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "test key")
	if err != nil {
		t.Fatalf("MarshalPrivateKey: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	sign, resolved, err := NewSSHSigner(keyPath)
	if err != nil {
		t.Fatalf("NewSSHSigner: %v", err)
	}
	if resolved != keyPath {
		t.Errorf("resolved path = %q, want %q", resolved, keyPath)
	}

	r := initRepo(t)
	writeFile(t, r, "a.txt", "signed\n")
	ctx := context.Background()
	if err := r.Add(ctx, []string{"a.txt"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h, err := r.Commit(ctx, CommitOptions{Message: "signed", Author: testSig, Committer: testSig, Signer: sign})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	fp, err := r.VerifyCommit(h)
	if err != nil {
		t.Fatalf("VerifyCommit: %v", err)
	}
	pub, err := ssh.NewPublicKey(priv.Public())
	if err != nil {
		t.Fatalf("NewPublicKey: %v", err)
	}
	if fp != ssh.FingerprintSHA256(pub) {
		t.Errorf("fingerprint = %s, want %s", fp, ssh.FingerprintSHA256(pub))
	}
}

func TestVerifyCommit_Unsigned(t *testing.T) {
	r := initRepo(t)
	writeFile(t, r, "a.txt", "a\n")
	h := commitAll(t, r, "plain")
	if _, err := r.VerifyCommit(h); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestNewSSHSigner_MissingKey(t *testing.T) {
	if _, _, err := NewSSHSigner(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("NewSSHSigner with a missing key succeeded")
	}
}
