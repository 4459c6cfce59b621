package mmap

// Slab is an anonymous memory region used as a staging copy target. On linux
// it is backed by 2 MiB huge pages when the host has them reserved, which
// keeps TLB pressure down when analytical code walks large columns.
type Slab struct {
	buf  []byte
	huge bool
}

// AllocSlab allocates a slab of at least bytes. The returned slab may be
// larger than requested due to huge-page rounding.
func AllocSlab(bytes int) (*Slab, error) {
	buf, huge, err := allocSlab(bytes)
	if err != nil {
		return nil, err
	}
	return &Slab{buf: buf, huge: huge}, nil
}

// Bytes returns the slab memory.
func (s *Slab) Bytes() []byte { return s.buf }

// Len returns the usable slab size in bytes.
func (s *Slab) Len() int { return len(s.buf) }

// HugeTLB reports whether the slab got explicit huge pages.
func (s *Slab) HugeTLB() bool { return s.huge }

// Free unmaps the slab. The slab must not be used afterwards.
func (s *Slab) Free() error {
	if s.buf == nil {
		return nil
	}
	err := Unmap(s.buf)
	s.buf = nil
	s.huge = false
	return err
}
