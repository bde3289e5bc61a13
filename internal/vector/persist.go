package vector

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"medichat/internal/embedding"
)

// snapshotVersion guards the binary layout. Format: version (4), dimensions (4),
// n (4), then per record: id, content, source as length-prefixed strings,
// followed by dimensions*4 bytes of vector data. All little-endian.
const snapshotVersion = 1

// Save persists the index to path, overwriting any prior snapshot there.
// Parent directories are created if needed.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("index path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	for _, v := range []uint32{snapshotVersion, uint32(ix.dimensions), uint32(len(ix.entries))} {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for i, e := range ix.entries {
		for _, s := range []string{e.ID, e.Content, e.Source} {
			if err := writeString(f, s); err != nil {
				return fmt.Errorf("write entry %d: %w", i, err)
			}
		}
		if _, err := f.Write(float32SliceToBytes(ix.vectors[i])); err != nil {
			return fmt.Errorf("write vector %d: %w", i, err)
		}
	}
	return nil
}

// Load reads a snapshot from path into a new index backed by embedder.
// Returns ErrIndexNotFound when no snapshot exists at path. The embedder's
// dimension must match the snapshot's.
func Load(path string, embedder embedding.Embedder) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, path)
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	var version, dim, n uint32
	for _, p := range []*uint32{&version, &dim, &n} {
		if err := binary.Read(f, binary.LittleEndian, p); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", version)
	}

	idx, err := New(embedder)
	if err != nil {
		return nil, err
	}
	if int(dim) != idx.dimensions {
		return nil, fmt.Errorf("dimension mismatch: snapshot has %d, embedder expects %d", dim, idx.dimensions)
	}

	idx.entries = make([]Entry, 0, n)
	idx.vectors = make([][]float32, 0, n)
	buf := make([]byte, idx.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var e Entry
		for _, p := range []*string{&e.ID, &e.Content, &e.Source} {
			s, err := readString(f)
			if err != nil {
				return nil, fmt.Errorf("read entry %d: %w", i, err)
			}
			*p = s
		}
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		idx.entries = append(idx.entries, e)
		idx.vectors = append(idx.vectors, bytesToFloat32Slice(buf))
	}
	return idx, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
