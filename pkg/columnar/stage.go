package columnar

import (
	"github.com/DJ824/hft-reader-writer/pkg/errors"
	"github.com/DJ824/hft-reader-writer/pkg/mmap"
)

// stage holds the huge-page slab a reader copies columns into. The slab only
// grows: a new file whose columns fit the existing slab reuses it with the
// column spacing of the largest file staged so far.
type stage struct {
	slab         *mmap.Slab
	colOff       []uint64
	capacityRows uint64
}

func (s *stage) ensure(widths []uint64, rows uint64) error {
	var need uint64
	for _, w := range widths {
		need += rows * w
	}

	if s.slab != nil && uint64(s.slab.Len()) >= need && rows <= s.capacityRows {
		return nil
	}

	if s.slab != nil {
		_ = s.slab.Free()
		s.slab = nil
	}

	slab, err := mmap.AllocSlab(int(need))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeCapacity, "stage slab alloc")
	}
	s.slab = slab
	s.capacityRows = rows
	s.colOff = make([]uint64, len(widths))
	var off uint64
	for i, w := range widths {
		s.colOff[i] = off
		off += rows * w
	}
	return nil
}

func (s *stage) free() error {
	if s.slab == nil {
		return nil
	}
	err := s.slab.Free()
	s.slab = nil
	s.colOff = nil
	s.capacityRows = 0
	return err
}
