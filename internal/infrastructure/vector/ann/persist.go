package ann

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

func init() {
	gob.Register(&Flat{})
	gob.Register(&IVF{})
	gob.Register(&IVFPQ{})
}

type envelope struct {
	Kind  Kind
	Index Index
}

// Save writes idx as a zstd-compressed gob stream.
func Save(w io.Writer, idx Index) error {
	if idx == nil {
		return errors.New("ann save: nil index")
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("ann save: zstd writer: %w", err)
	}
	if err := gob.NewEncoder(enc).Encode(envelope{Kind: idx.Kind(), Index: idx}); err != nil {
		_ = enc.Close()
		return fmt.Errorf("ann save: encode %s: %w", idx.Kind(), err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("ann save: flush: %w", err)
	}
	return nil
}

// Load reads an index written by Save. nprobe overrides the persisted probe
// count of inverted-file variants when positive.
func Load(r io.Reader, nprobe int) (Index, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("ann load: zstd reader: %w", err)
	}
	defer dec.Close()

	var env envelope
	if err := gob.NewDecoder(dec).Decode(&env); err != nil {
		return nil, fmt.Errorf("ann load: decode: %w", err)
	}
	if env.Index == nil || env.Index.Kind() != env.Kind {
		return nil, fmt.Errorf("ann load: corrupt envelope for kind %q", env.Kind)
	}
	if nprobe > 0 {
		switch idx := env.Index.(type) {
		case *IVF:
			idx.NProbe = nprobe
		case *IVFPQ:
			idx.NProbe = nprobe
		}
	}
	return env.Index, nil
}
