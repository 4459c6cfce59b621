package schema

import (
	"unsafe"
)

// L3Row is a single order-level event: add, modify or delete of one order.
type L3Row struct {
	ID     uint64
	TsNs   uint64
	Price  uint32
	Size   uint32
	Action uint8
	Side   uint8
}

// L3 column indices.
const (
	L3ColID = iota
	L3ColTs
	L3ColPx
	L3ColSz
	L3ColAct
	L3ColSide
	l3Cols
)

// L3 is the schema for per-order book events.
type L3 struct{}

func (L3) Cols() uint32    { return l3Cols }
func (L3) Magic() [6]byte  { return [6]byte{'L', '3', 'C', 'O', 'L', '\n'} }
func (L3) Version() uint16 { return 1 }

func (L3) ColSize(i uint32) uint64 {
	switch {
	case i <= L3ColTs:
		return 8
	case i <= L3ColSz:
		return 4
	default:
		return 1
	}
}

func (L3) PartitionHour(r *L3Row) uint64 { return hourFromTs(r.TsNs) }

func (L3) WriteRow(r *L3Row, c []unsafe.Pointer, i uint64) {
	*(*uint64)(unsafe.Add(c[L3ColID], uintptr(i)*8)) = r.ID
	*(*uint64)(unsafe.Add(c[L3ColTs], uintptr(i)*8)) = r.TsNs
	*(*uint32)(unsafe.Add(c[L3ColPx], uintptr(i)*4)) = r.Price
	*(*uint32)(unsafe.Add(c[L3ColSz], uintptr(i)*4)) = r.Size
	*(*uint8)(unsafe.Add(c[L3ColAct], uintptr(i))) = r.Action
	*(*uint8)(unsafe.Add(c[L3ColSide], uintptr(i))) = r.Side
}

func (L3) ReadRow(r *L3Row, c []unsafe.Pointer, i uint64) {
	r.ID = *(*uint64)(unsafe.Add(c[L3ColID], uintptr(i)*8))
	r.TsNs = *(*uint64)(unsafe.Add(c[L3ColTs], uintptr(i)*8))
	r.Price = *(*uint32)(unsafe.Add(c[L3ColPx], uintptr(i)*4))
	r.Size = *(*uint32)(unsafe.Add(c[L3ColSz], uintptr(i)*4))
	r.Action = *(*uint8)(unsafe.Add(c[L3ColAct], uintptr(i)))
	r.Side = *(*uint8)(unsafe.Add(c[L3ColSide], uintptr(i)))
}
