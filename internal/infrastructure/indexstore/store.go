package indexstore

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/floraqa/internal/core/domain"
	"github.com/kirillkom/floraqa/internal/core/ports"
	"github.com/kirillkom/floraqa/internal/infrastructure/lexical/bm25"
	"github.com/kirillkom/floraqa/internal/infrastructure/vector/ann"
)

const (
	fileVectors = "vector.index.zst"
	fileChunks  = "chunks.json"
	fileCorpus  = "corpus.gob"
	fileBM25    = "bm25.gob"
	fileMeta    = "meta.json"
)

var artifactFiles = []string{fileVectors, fileChunks, fileCorpus, fileBM25, fileMeta}

type meta struct {
	Dimension   int       `json:"dimension"`
	Chunks      int       `json:"chunks"`
	IndexKind   ann.Kind  `json:"index_kind"`
	BuiltAt     time.Time `json:"built_at"`
	Fingerprint string    `json:"fingerprint"`
}

// fingerprint hashes the chunk list with the build time and a build nonce.
// Two builds over identical sources differ.
func fingerprint(chunks []domain.KnowledgeChunk, builtAt time.Time, nonce string) string {
	h := sha256.New()
	for _, chunk := range chunks {
		io.WriteString(h, chunk.ID)
		h.Write([]byte{0})
		io.WriteString(h, chunk.Text)
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "%d|%s", builtAt.UnixNano(), nonce)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// Store persists the corpus artifact set in one directory. A set is written
// to a staging directory and renamed into place, so readers never observe a
// partial set.
type Store struct {
	dir  string
	opts ann.Options
}

func New(dir string, opts ann.Options) (*Store, error) {
	if dir == "" {
		dir = "./data/index"
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(dir)), 0o755); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "create index parent dir", err)
	}
	return &Store{dir: dir, opts: opts}, nil
}

func (s *Store) Dir() string { return s.dir }

// Load reads the artifact set. A missing file yields ErrNotFound; files that
// disagree with each other yield ErrIndexUnavailable.
func (s *Store) Load(_ context.Context) (ports.CorpusIndex, error) {
	for _, name := range artifactFiles {
		if _, err := os.Stat(filepath.Join(s.dir, name)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, domain.WrapError(domain.ErrNotFound, "load index", fmt.Errorf("artifact %s missing", name))
			}
			return nil, domain.WrapError(domain.ErrIndexUnavailable, "load index", err)
		}
	}

	var m meta
	if err := s.readJSON(fileMeta, &m); err != nil {
		return nil, err
	}
	var chunks []domain.KnowledgeChunk
	if err := s.readJSON(fileChunks, &chunks); err != nil {
		return nil, err
	}
	var tokens [][]string
	if err := s.readGob(fileCorpus, &tokens); err != nil {
		return nil, err
	}
	var model bm25.Model
	if err := s.readGob(fileBM25, &model); err != nil {
		return nil, err
	}
	vectors, err := s.readVectors()
	if err != nil {
		return nil, err
	}

	if vectors.Len() != len(chunks) || model.Len() != len(chunks) || len(tokens) != len(chunks) ||
		m.Chunks != len(chunks) || m.Dimension != vectors.Dimension() {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "load index", fmt.Errorf(
			"artifact sizes disagree: chunks=%d vectors=%d bm25=%d corpus=%d meta=%d dim=%d/%d",
			len(chunks), vectors.Len(), model.Len(), len(tokens), m.Chunks, m.Dimension, vectors.Dimension(),
		))
	}
	for i := range chunks {
		chunks[i].Position = i
	}
	if m.Fingerprint == "" {
		m.Fingerprint = fingerprint(chunks, m.BuiltAt, "")
	}
	return &Corpus{chunks: chunks, vectors: vectors, lexical: &model, fingerprint: m.Fingerprint}, nil
}

// Build fits both indexes over chunks and persists the set atomically.
func (s *Store) Build(_ context.Context, chunks []domain.KnowledgeChunk, vectors [][]float32) (ports.CorpusIndex, error) {
	if len(chunks) == 0 || len(chunks) != len(vectors) {
		return nil, fmt.Errorf("build index: chunks/vectors mismatch: %d/%d", len(chunks), len(vectors))
	}

	vectorIndex, err := ann.Build(vectors, s.opts)
	if err != nil {
		return nil, fmt.Errorf("build vector index: %w", err)
	}
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	tokens := bm25.TokenizeAll(texts)
	model, err := bm25.Fit(tokens)
	if err != nil {
		return nil, fmt.Errorf("fit bm25: %w", err)
	}

	builtAt := time.Now().UTC()
	m := meta{
		Dimension:   vectorIndex.Dimension(),
		Chunks:      len(chunks),
		IndexKind:   vectorIndex.Kind(),
		BuiltAt:     builtAt,
		Fingerprint: fingerprint(chunks, builtAt, uuid.NewString()),
	}
	if err := s.persist(chunks, tokens, model, vectorIndex, m); err != nil {
		return nil, err
	}
	slog.Info("index_artifacts_written", "dir", s.dir, "chunks", m.Chunks, "index_kind", m.IndexKind, "fingerprint", m.Fingerprint)

	owned := make([]domain.KnowledgeChunk, len(chunks))
	copy(owned, chunks)
	for i := range owned {
		owned[i].Position = i
	}
	return &Corpus{chunks: owned, vectors: vectorIndex, lexical: model, fingerprint: m.Fingerprint}, nil
}

func (s *Store) persist(chunks []domain.KnowledgeChunk, tokens [][]string, model *bm25.Model, vectors ann.Index, m meta) error {
	parent := filepath.Dir(filepath.Clean(s.dir))
	staging, err := os.MkdirTemp(parent, ".index-staging-*")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{fileChunks, func(w io.Writer) error { return json.NewEncoder(w).Encode(chunks) }},
		{fileCorpus, func(w io.Writer) error { return gob.NewEncoder(w).Encode(tokens) }},
		{fileBM25, func(w io.Writer) error { return gob.NewEncoder(w).Encode(model) }},
		{fileVectors, func(w io.Writer) error { return ann.Save(w, vectors) }},
		{fileMeta, func(w io.Writer) error { return json.NewEncoder(w).Encode(m) }},
	}
	for _, wr := range writers {
		if err := writeFile(filepath.Join(staging, wr.name), wr.write); err != nil {
			return fmt.Errorf("write %s: %w", wr.name, err)
		}
	}

	previous := ""
	if _, err := os.Stat(s.dir); err == nil {
		previous = fmt.Sprintf("%s.previous-%d", filepath.Clean(s.dir), time.Now().UnixNano())
		if err := os.Rename(s.dir, previous); err != nil {
			return fmt.Errorf("move previous index aside: %w", err)
		}
	}
	if err := os.Rename(staging, s.dir); err != nil {
		if previous != "" {
			_ = os.Rename(previous, s.dir)
		}
		return fmt.Errorf("install index dir: %w", err)
	}
	if previous != "" {
		if err := os.RemoveAll(previous); err != nil {
			slog.Warn("index_previous_cleanup_failed", "dir", previous, "error", err)
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync file: %w", err)
	}
	return f.Close()
}

func (s *Store) open(name string) (*os.File, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "open "+name, err)
	}
	return f, nil
}

func (s *Store) readJSON(name string, dst any) error {
	f, err := s.open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(dst); err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, "decode "+name, err)
	}
	return nil
}

func (s *Store) readGob(name string, dst any) error {
	f, err := s.open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(dst); err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, "decode "+name, err)
	}
	return nil
}

func (s *Store) readVectors() (ann.Index, error) {
	f, err := s.open(fileVectors)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	idx, err := ann.Load(f, s.opts.NProbe)
	if err != nil {
		return nil, domain.WrapError(domain.ErrIndexUnavailable, "decode "+fileVectors, err)
	}
	return idx, nil
}
