// Package digest maps configured algorithm names to hash implementations.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"sort"
	"strings"

	zerrors "github.com/zzenonn/zpreserve/internal/errors"
)

var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

// Supported lists the known algorithm names.
func Supported() []string {
	names := make([]string, 0, len(algorithms))
	for name := range algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize lower-cases alg and rejects unknown algorithms.
func Normalize(alg string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(alg))
	if _, ok := algorithms[name]; !ok {
		return "", zerrors.ConfigurationError("unknown digest algorithm %q, expected one of %s", alg, strings.Join(Supported(), ", "))
	}
	return name, nil
}

func New(alg string) (hash.Hash, error) {
	name, err := Normalize(alg)
	if err != nil {
		return nil, err
	}
	return algorithms[name](), nil
}

// Compute returns the hex digest of r.
func Compute(alg string, r io.Reader) (string, error) {
	h, err := New(alg)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
