package novasm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// SchemaVersion is the assembly file schema; bump it when filePayload changes.
const SchemaVersion uint16 = 1

const fileMagic = "novasm"

// ErrSchemaMismatch is returned by Load for files written by an incompatible version.
var ErrSchemaMismatch = errors.New("assembly schema mismatch")

// filePayload is the on-disk representation of an Assembly.
type filePayload struct {
	Magic  string   `msgpack:"magic"`
	Schema uint16   `msgpack:"schema"`
	Code   []byte   `msgpack:"code"`
	Lits   []string `msgpack:"lits"`
	Entry  []uint32 `msgpack:"entry"`
}

// Save encodes a to w.
func Save(w io.Writer, a *Assembly) error {
	enc := msgpack.NewEncoder(w)
	return enc.Encode(&filePayload{
		Magic:  fileMagic,
		Schema: SchemaVersion,
		Code:   a.Instructions,
		Lits:   a.LitStrings,
		Entry:  a.EntryPoints,
	})
}

// Load decodes an assembly previously written by Save.
func Load(r io.Reader) (*Assembly, error) {
	var p filePayload
	if err := msgpack.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode assembly: %w", err)
	}
	if p.Magic != fileMagic {
		return nil, fmt.Errorf("not an assembly file (magic %q)", p.Magic)
	}
	if p.Schema != SchemaVersion {
		return nil, fmt.Errorf("%w: file has %d, expected %d", ErrSchemaMismatch, p.Schema, SchemaVersion)
	}
	return &Assembly{Instructions: p.Code, LitStrings: p.Lits, EntryPoints: p.Entry}, nil
}

// WriteFile saves a to path, replacing any existing file atomically.
func WriteFile(path string, a *Assembly) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".novasm-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if err := Save(f, a); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// ReadFile loads the assembly stored at path.
func ReadFile(path string) (*Assembly, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	a, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}
