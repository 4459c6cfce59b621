package schema

import (
	"unsafe"
)

// L2Row is a single order-book level update.
type L2Row struct {
	TsNs  uint64
	Price uint32
	Qty   float32
	Side  uint8
}

// L2 column indices.
const (
	L2ColTs = iota
	L2ColPx
	L2ColQty
	L2ColSide
	l2Cols
)

// L2 is the schema for level-2 book updates.
type L2 struct{}

func (L2) Cols() uint32    { return l2Cols }
func (L2) Magic() [6]byte  { return [6]byte{'L', '2', 'C', 'O', 'L', '\n'} }
func (L2) Version() uint16 { return 1 }

func (L2) ColSize(i uint32) uint64 {
	switch i {
	case L2ColTs:
		return 8
	case L2ColPx, L2ColQty:
		return 4
	default:
		return 1
	}
}

func (L2) PartitionHour(r *L2Row) uint64 { return hourFromTs(r.TsNs) }

func (L2) WriteRow(r *L2Row, c []unsafe.Pointer, i uint64) {
	*(*uint64)(unsafe.Add(c[L2ColTs], uintptr(i)*8)) = r.TsNs
	*(*uint32)(unsafe.Add(c[L2ColPx], uintptr(i)*4)) = r.Price
	*(*float32)(unsafe.Add(c[L2ColQty], uintptr(i)*4)) = r.Qty
	*(*uint8)(unsafe.Add(c[L2ColSide], uintptr(i))) = r.Side
}

func (L2) ReadRow(r *L2Row, c []unsafe.Pointer, i uint64) {
	r.TsNs = *(*uint64)(unsafe.Add(c[L2ColTs], uintptr(i)*8))
	r.Price = *(*uint32)(unsafe.Add(c[L2ColPx], uintptr(i)*4))
	r.Qty = *(*float32)(unsafe.Add(c[L2ColQty], uintptr(i)*4))
	r.Side = *(*uint8)(unsafe.Add(c[L2ColSide], uintptr(i)))
}
