package vm

import "fmt"

// ObjectID is the stable, opaque identifier stored inside
// Reference-tagged words. It never changes across a GC cycle even
// though the object's physical offset does.
type ObjectID uint64

// object is an indirection-table entry: everything the Heap knows
// about one live allocation. Objects carry no header in the arena —
// this struct is the only metadata, exactly as §3 specifies.
type object struct {
	id     ObjectID
	offset int // current physical byte offset inside the arena
	length int // logical size in bytes, as requested at allocation
}

// Heap owns the byte arena and the indirection table translating
// object ids to physical locations. It never hands out raw pointers:
// every access goes through ReadWord/WriteWord/ReadBytes/WriteBytes
// keyed by id, so the GC is free to move objects underneath callers.
type Heap struct {
	arena  *wordStore
	bump   int
	table  map[ObjectID]*object
	nextID ObjectID
	gc     *gcStats
}

// stats summarizes one heap state snapshot, used for GC before/after
// diagnostics and for the §8 "free tail" testable property.
type stats struct {
	LiveObjects int
	LiveBytes   int
	FreeBytes   int
}

type gcStats struct {
	Cycles    int
	Reclaimed int
}

func NewHeap(size int) *Heap {
	return &Heap{
		arena:  newWordStore(size),
		table:  make(map[ObjectID]*object),
		nextID: 1, // 0 is never issued, so a zeroed Word is never mistaken for a live reference
		gc:     &gcStats{},
	}
}

func (h *Heap) Capacity() int { return h.arena.Len() }

func (h *Heap) Stats() stats {
	s := stats{FreeBytes: h.arena.Len() - h.bump}
	for _, o := range h.table {
		s.LiveObjects++
		s.LiveBytes += o.length
	}
	return s
}

// Allocate reserves size bytes and returns a fresh id. On failure it
// asks collect (supplied by the caller, normally the Interpreter via
// roots it alone can enumerate) to run a GC cycle and retries once;
// a second failure is an out-of-memory fault.
func (h *Heap) Allocate(size int, collect func()) (ObjectID, error) {
	if size <= 0 {
		return 0, fmt.Errorf("allocation size must be positive, got %d", size)
	}

	id, ok := h.tryAllocate(size)
	if ok {
		return id, nil
	}

	if collect != nil {
		collect()
		id, ok = h.tryAllocate(size)
		if ok {
			return id, nil
		}
	}

	return 0, fmt.Errorf("out of memory: cannot allocate %d bytes (%d free)", size, h.arena.Len()-h.bump)
}

func (h *Heap) tryAllocate(size int) (ObjectID, bool) {
	footprint := align8(size)
	if h.bump+footprint > h.arena.Len() {
		return 0, false
	}

	offset := h.bump
	h.arena.zero(offset, footprint)
	h.bump += footprint

	id := h.nextID
	h.nextID++
	h.table[id] = &object{id: id, offset: offset, length: size}
	return id, true
}

func (h *Heap) lookup(id ObjectID) (*object, error) {
	o, ok := h.table[id]
	if !ok {
		return nil, fmt.Errorf("invalid or retired object id %d", id)
	}
	return o, nil
}

// Resolve exposes (physical offset, length) for an id.
func (h *Heap) Resolve(id ObjectID) (offset, length int, err error) {
	o, err := h.lookup(id)
	if err != nil {
		return 0, 0, err
	}
	return o.offset, o.length, nil
}

func (h *Heap) ReadWord(id ObjectID, byteOffset int) (Word, error) {
	o, err := h.lookup(id)
	if err != nil {
		return Word{}, err
	}
	if byteOffset < 0 || byteOffset+8 > o.length {
		return Word{}, fmt.Errorf("out-of-bounds word read at offset %d in object %d (length %d)", byteOffset, id, o.length)
	}
	return h.arena.ReadWord(o.offset + byteOffset)
}

func (h *Heap) WriteWord(id ObjectID, byteOffset int, value Word) error {
	o, err := h.lookup(id)
	if err != nil {
		return err
	}
	if byteOffset < 0 || byteOffset+8 > o.length {
		return fmt.Errorf("out-of-bounds word write at offset %d in object %d (length %d)", byteOffset, id, o.length)
	}
	return h.arena.WriteWord(o.offset+byteOffset, value)
}

func (h *Heap) ReadBytes(id ObjectID, byteOffset, length int) ([]byte, error) {
	o, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	if byteOffset < 0 || length < 0 || byteOffset+length > o.length {
		return nil, fmt.Errorf("out-of-bounds byte read at offset %d, length %d in object %d (length %d)", byteOffset, length, id, o.length)
	}
	return h.arena.ReadBytes(o.offset+byteOffset, length)
}

func (h *Heap) WriteBytes(id ObjectID, byteOffset int, data []byte) error {
	o, err := h.lookup(id)
	if err != nil {
		return err
	}
	if byteOffset < 0 || byteOffset+len(data) > o.length {
		return fmt.Errorf("out-of-bounds byte write at offset %d, length %d in object %d (length %d)", byteOffset, len(data), id, o.length)
	}
	return h.arena.WriteBytes(o.offset+byteOffset, data)
}

// objectsByOffset returns every table entry sorted by ascending
// physical offset, the order the compactor must walk in.
func (h *Heap) objectsByOffset() []*object {
	out := make([]*object, 0, len(h.table))
	for _, o := range h.table {
		out = append(out, o)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].offset > out[j].offset; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
