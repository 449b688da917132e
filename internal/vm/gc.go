package vm

import log "github.com/sirupsen/logrus"

// Roots is everything outside the heap that can anchor an object:
// the register file and every Reference-tagged live stack slot. The
// Interpreter assembles this on each collection since only it knows
// which stack region is currently in use (between SP and the top).
type Roots struct {
	Registers []Word
	Stack     []Word // Reference-tagged words found on the live stack range
}

// Collect runs one mark-sweep-compact cycle. Mark walks outward from
// roots through every heap object reachable via Reference-tagged
// words inside it; sweep retires anything unmarked; compact slides
// surviving objects down to eliminate the resulting holes so the bump
// pointer can resume linear allocation.
func (h *Heap) Collect(roots Roots) {
	before := h.Stats()

	marked := h.mark(roots)
	h.sweep(marked)
	h.compact()

	h.gc.Cycles++
	after := h.Stats()
	h.gc.Reclaimed += before.LiveBytes - after.LiveBytes

	log.WithFields(log.Fields{
		"cycle":     h.gc.Cycles,
		"reclaimed": before.LiveBytes - after.LiveBytes,
		"live":      after.LiveBytes,
		"free":      after.FreeBytes,
	}).Debug("gc cycle complete")
}

func (h *Heap) mark(roots Roots) map[ObjectID]bool {
	marked := make(map[ObjectID]bool)
	var stack []ObjectID

	push := func(w Word) {
		if w.Tag != Reference {
			return
		}
		id := ObjectID(w.Value)
		if _, ok := h.table[id]; !ok {
			log.WithField("id", uint64(id)).Warn("gc: reference-tagged word matches no live object; ignored")
			return
		}
		if marked[id] {
			return
		}
		marked[id] = true
		stack = append(stack, id)
	}

	for _, w := range roots.Registers {
		push(w)
	}
	for _, w := range roots.Stack {
		push(w)
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		o := h.table[id]

		for off := 0; off+8 <= o.length; off += 8 {
			w, err := h.arena.ReadWord(o.offset + off)
			if err != nil {
				break
			}
			push(w)
		}
	}

	return marked
}

func (h *Heap) sweep(marked map[ObjectID]bool) {
	for id := range h.table {
		if !marked[id] {
			delete(h.table, id)
		}
	}
}

// compact slides every surviving object down to remove the gaps left
// by sweep, walking in ascending offset order so no live object is
// ever overwritten before it is read (moveRange's leftward memmove
// semantics guarantee this once objects are visited low to high).
func (h *Heap) compact() {
	objs := h.objectsByOffset()

	cursor := 0
	for _, o := range objs {
		footprint := align8(o.length)
		if o.offset != cursor {
			h.arena.moveRange(cursor, o.offset, footprint)
			o.offset = cursor
		}
		cursor += footprint
	}

	h.bump = cursor
}
