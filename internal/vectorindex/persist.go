package vectorindex

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"docqa/internal/domain"
)

const (
	IndexFile = "index.bin"
	MetaFile  = "meta.jsonl"

	formatVersion = 1
)

var magic = [4]byte{'D', 'Q', 'I', 'X'}

type header struct {
	Magic     [4]byte
	Format    uint32
	Dimension uint32
	Count     uint64
	Version   uint64
}

// Paths returns the vector and metadata artifact paths.
func (x *Index) Paths() (string, string) {
	return filepath.Join(x.dir, IndexFile), filepath.Join(x.dir, MetaFile)
}

// Save writes both artifacts atomically.
func (x *Index) Save() error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.saveLocked()
}

func (x *Index) saveLocked() error {
	if x.dir == "" {
		return errors.New("index directory not configured")
	}
	if !x.st.exists {
		return ErrNoIndex
	}
	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	indexPath, metaPath := x.Paths()
	if err := writeAtomic(metaPath, func(w io.Writer) error { return writeMeta(w, x.st.meta) }); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := writeAtomic(indexPath, func(w io.Writer) error { return writeVectors(w, &x.st) }); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	return nil
}

// Load replaces the in-memory state with the persisted artifacts. It reports false
// with a nil error when either artifact is missing. Corrupt artifacts leave the
// current state untouched and return ErrCorruptIndex.
func (x *Index) Load() (bool, error) {
	if x.dir == "" {
		return false, nil
	}
	indexPath, metaPath := x.Paths()
	for _, p := range []string{indexPath, metaPath} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return false, nil
			}
			return false, fmt.Errorf("stat %s: %w", p, err)
		}
	}
	st, err := readState(indexPath, metaPath)
	if err != nil {
		return false, err
	}
	x.mu.Lock()
	x.st = *st
	x.mu.Unlock()
	return true, nil
}

func readState(indexPath, metaPath string) (*state, error) {
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", indexPath, err)
	}
	r := bytes.NewReader(raw)
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptIndex, err)
	}
	if h.Magic != magic || h.Format != formatVersion || h.Dimension == 0 {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptIndex)
	}
	rowBytes := uint64(h.Dimension) * 4
	if h.Count > uint64(r.Len())/rowBytes {
		return nil, fmt.Errorf("%w: %d vectors do not fit in %d payload bytes", ErrCorruptIndex, h.Count, r.Len())
	}
	want := rowBytes * h.Count
	if uint64(r.Len()) != want {
		return nil, fmt.Errorf("%w: vector payload is %d bytes, want %d", ErrCorruptIndex, r.Len(), want)
	}
	dim := int(h.Dimension)
	vectors := make([][]float32, h.Count)
	payload := raw[len(raw)-r.Len():]
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			off := (i*dim + j) * 4
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(payload[off:]))
		}
		vectors[i] = v
	}
	meta, err := readMeta(metaPath)
	if err != nil {
		return nil, err
	}
	if uint64(len(meta)) != h.Count {
		return nil, fmt.Errorf("%w: %d metadata lines for %d vectors", ErrCorruptIndex, len(meta), h.Count)
	}
	return &state{exists: true, dimension: dim, vectors: vectors, meta: meta, version: h.Version}, nil
}

func writeVectors(w io.Writer, st *state) error {
	h := header{
		Magic:     magic,
		Format:    formatVersion,
		Dimension: uint32(st.dimension),
		Count:     uint64(len(st.vectors)),
		Version:   st.version,
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return err
	}
	buf := make([]byte, 4*st.dimension)
	for _, v := range st.vectors {
		for j, f := range v {
			binary.LittleEndian.PutUint32(buf[4*j:], math.Float32bits(f))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func writeMeta(w io.Writer, meta []domain.Chunk) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, m := range meta {
		if err := enc.Encode(m); err != nil {
			return err
		}
	}
	return nil
}

func readMeta(path string) ([]domain.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	var out []domain.Chunk
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var c domain.Chunk
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			return nil, fmt.Errorf("%w: metadata line %d: %v", ErrCorruptIndex, line, err)
		}
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrCorruptIndex, err)
	}
	return out, nil
}

func writeAtomic(path string, fill func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	bw := bufio.NewWriter(tmp)
	err = fill(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
