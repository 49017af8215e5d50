package render

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrStaleInstance is returned for a handle whose instance has been deleted.
var ErrStaleInstance = errors.New("stale instance handle")

// Instance identifies one drawable occurrence of a Model. Handles stay valid
// across deletion of other instances; a handle to a deleted instance is
// rejected instead of aliasing whichever instance reuses its slot.
type Instance struct {
	slot       int
	generation uint32
}

// Slot is the position of the instance in its model's instance buffer.
func (i Instance) Slot() int {
	return i.slot
}

type instanceSlot struct {
	generation uint32
	alive      bool
	visible    bool
	transform  mgl32.Mat4
}

// instanceArena is a free-list of generation-counted slots.
type instanceArena struct {
	slots []instanceSlot
	free  []int
	live  int
}

func (a *instanceArena) create() Instance {
	var slot int
	if n := len(a.free); n > 0 {
		slot = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		slot = len(a.slots)
		a.slots = append(a.slots, instanceSlot{})
	}

	s := &a.slots[slot]
	s.alive = true
	s.visible = true
	s.transform = mgl32.Ident4()
	a.live++

	return Instance{slot: slot, generation: s.generation}
}

func (a *instanceArena) lookup(inst Instance) (*instanceSlot, error) {
	if inst.slot < 0 || inst.slot >= len(a.slots) {
		return nil, errors.Wrapf(ErrStaleInstance, "slot %d out of range", inst.slot)
	}

	s := &a.slots[inst.slot]
	if !s.alive || s.generation != inst.generation {
		return nil, errors.Wrapf(ErrStaleInstance, "slot %d generation %d", inst.slot, inst.generation)
	}
	return s, nil
}

func (a *instanceArena) remove(inst Instance) error {
	s, err := a.lookup(inst)
	if err != nil {
		return err
	}

	s.alive = false
	s.visible = false
	s.generation++
	a.free = append(a.free, inst.slot)
	a.live--
	return nil
}

// slotCount is the number of slots the instance buffer must hold to cover every
// live instance.
func (a *instanceArena) slotCount() int {
	return len(a.slots)
}

// snapshot fills out with one entry per slot, up to len(out).
func (a *instanceArena) snapshot(out []InstanceData) {
	for i := range out {
		if i >= len(a.slots) || !a.slots[i].alive {
			out[i] = InstanceData{Transform: mgl32.Ident4()}
			continue
		}

		s := a.slots[i]
		out[i].Transform = s.transform
		out[i].Params = mgl32.Vec4{0, 0, 0, 0}
		if s.visible {
			out[i].Params[0] = 1
		}
	}
}
