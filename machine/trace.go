package machine

import (
	"fmt"

	"github.com/juniuszhou/ckb-vm/instructions"
	"github.com/juniuszhou/ckb-vm/memory"
)

// Trace cache geometry. The address shift thins consecutive pc values so
// nearby basic blocks land in different slots.
const (
	DefaultTraceSize         = 8192
	DefaultTraceItemLength   = 16
	DefaultTraceAddressShift = 5

	// widest RV64 IMAC encoding in bytes
	maxInstructionLength = 4
)

// TraceConfig fixes the cache geometry at construction time. Tests use tiny
// tables; production uses the defaults.
type TraceConfig struct {
	Size         uint64
	ItemLength   uint64
	AddressShift uint
}

func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		Size:         DefaultTraceSize,
		ItemLength:   DefaultTraceItemLength,
		AddressShift: DefaultTraceAddressShift,
	}
}

func (c TraceConfig) validate() error {
	if c.Size == 0 || c.Size&(c.Size-1) != 0 {
		return fmt.Errorf("trace cache size %d is not a power of two", c.Size)
	}
	if c.ItemLength == 0 {
		return fmt.Errorf("trace item length must be positive")
	}
	return nil
}

// maxBlockSpan is the most bytes one trace can cover. The invalidation
// window is derived from it, so it must track the trace capacity and the
// widest instruction encoding.
func (c TraceConfig) maxBlockSpan() uint64 {
	return c.ItemLength * maxInstructionLength
}

// trace is one cached basic block. instructionCount zero marks an empty
// slot; the overlap test in clearTraces skips empty slots without a
// separate occupancy bit because a zero-length range overlaps nothing.
type trace struct {
	address          uint64
	length           uint64
	instructionCount uint8
	instructions     []instructions.Instruction
}

// TraceMachine layers a direct-mapped basic block cache over DefaultMachine.
// It implements memory.Memory itself and hands that view to executing
// instructions, so every mutating memory operation synchronously invalidates
// overlapping traces before it returns.
type TraceMachine struct {
	*DefaultMachine

	cfg          TraceConfig
	maxBlockSpan uint64
	traces       []trace

	// run-scoped: which slot is mid-execution and whether an invalidation
	// hit it during the current block
	runningSlot    uint64
	inBlock        bool
	runningCleared bool

	fills uint64
	hits  uint64
}

func NewTraceMachine(mem memory.Memory, cfg TraceConfig) (*TraceMachine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &TraceMachine{
		DefaultMachine: NewDefaultMachine(mem),
		cfg:            cfg,
		maxBlockSpan:   cfg.maxBlockSpan(),
		traces:         make([]trace, cfg.Size),
	}, nil
}

func NewDefaultTraceMachine(mem memory.Memory) *TraceMachine {
	t, err := NewTraceMachine(mem, DefaultTraceConfig())
	if err != nil {
		panic(err)
	}
	return t
}

// Memory returns the machine itself so instruction stores and loads flow
// through the invalidation hooks below.
func (t *TraceMachine) Memory() memory.Memory { return t }

// Fills and Hits report cache behavior since the last reset.
func (t *TraceMachine) Fills() uint64 { return t.fills }
func (t *TraceMachine) Hits() uint64  { return t.hits }

func (t *TraceMachine) slot(addr uint64) uint64 {
	return (addr >> t.cfg.AddressShift) & (t.cfg.Size - 1)
}

// resetTraces empties every slot. Called on entering a run.
func (t *TraceMachine) resetTraces() {
	for i := range t.traces {
		t.traces[i].address = 0
		t.traces[i].length = 0
		t.traces[i].instructionCount = 0
	}
	t.fills = 0
	t.hits = 0
}

// clearTraces evicts every trace whose block overlaps [addr, addr+size).
// The scan starts maxBlockSpan bytes below addr because the slot index is a
// function of a block's start address only; a long block starting before the
// written range can still cover it. The window is derived from the
// configured capacity, never tuned by hand.
func (t *TraceMachine) clearTraces(addr uint64, size uint64) {
	if size == 0 {
		return
	}
	end := addr + size
	start := uint64(0)
	if addr > t.maxBlockSpan {
		start = addr - t.maxBlockSpan
	}
	base := start >> t.cfg.AddressShift
	span := (end >> t.cfg.AddressShift) - base
	if span >= t.cfg.Size {
		span = t.cfg.Size - 1
	}
	for i := uint64(0); i <= span; i++ {
		slot := (base + i) & (t.cfg.Size - 1)
		tr := &t.traces[slot]
		if end <= tr.address || tr.address+tr.length <= addr {
			continue
		}
		tr.address = 0
		tr.length = 0
		tr.instructionCount = 0
		if t.inBlock && slot == t.runningSlot {
			t.runningCleared = true
		}
	}
}

// fillTrace decodes a fresh basic block starting at pc into the slot,
// evicting whatever occupied it. Decoding stops at the first block-ending
// instruction or at capacity.
func (t *TraceMachine) fillTrace(slot uint64, pc uint64) error {
	tr := &t.traces[slot]
	if tr.instructions == nil {
		tr.instructions = make([]instructions.Instruction, t.cfg.ItemLength)
	}
	tr.address = pc
	tr.length = 0
	tr.instructionCount = 0

	current := pc
	count := uint64(0)
	for count < t.cfg.ItemLength {
		inst, err := t.dec.Decode(t.mem, current)
		if err != nil {
			return err
		}
		tr.instructions[count] = inst
		current += inst.Length()
		count++
		if instructions.IsBasicBlockEnd(inst.Op()) {
			break
		}
	}
	tr.length = current - pc
	tr.instructionCount = uint8(count)
	t.fills++
	return nil
}

// lookupOrFill returns the slot holding the block starting at pc, decoding
// it fresh unless the slot already caches exactly this block.
func (t *TraceMachine) lookupOrFill(pc uint64) (uint64, error) {
	slot := t.slot(pc)
	if t.traces[slot].address == pc && t.traces[slot].instructionCount != 0 {
		t.hits++
		return slot, nil
	}
	return slot, t.fillTrace(slot, pc)
}

// Run executes from the current pc until halt or fault, reusing cached
// basic blocks where the slot still holds the block for this pc.
func (t *TraceMachine) Run() error {
	t.resetTraces()
	t.running = true
	for t.running {
		slot, err := t.lookupOrFill(t.pc)
		if err != nil {
			t.running = false
			return err
		}

		t.runningSlot = slot
		t.inBlock = true
		t.runningCleared = false
		err = t.runTrace(slot)
		t.inBlock = false
		if err != nil {
			t.running = false
			return err
		}
	}
	return nil
}

func (t *TraceMachine) runTrace(slot uint64) error {
	count := int(t.traces[slot].instructionCount)
	for i := 0; i < count; i++ {
		// copy before executing; the instruction may evict its own slot
		inst := t.traces[slot].instructions[i]
		if err := instructions.Execute(inst, t); err != nil {
			return err
		}
		if t.cycleFunc != nil {
			if err := t.AddCycles(t.cycleFunc(inst)); err != nil {
				return err
			}
		}
		if t.runningCleared {
			break
		}
		if !t.running {
			break
		}
	}
	return nil
}

// memory.Memory implementation. Loads pass through; every mutation is
// followed synchronously by invalidation over the exact range touched,
// so there is no window where a stale trace can be observed.

func (t *TraceMachine) Mmap(addr uint64, size uint64, prot uint8, source []byte, offset uint64) error {
	if err := t.mem.Mmap(addr, size, prot, source, offset); err != nil {
		return err
	}
	// The memory layer rounds the range up to a page multiple and touches
	// the whole rounded range, so the invalidation must cover it too.
	t.clearTraces(addr, memory.RoundPageUp(size))
	return nil
}

func (t *TraceMachine) Munmap(addr uint64, size uint64) error {
	if err := t.mem.Munmap(addr, size); err != nil {
		return err
	}
	t.clearTraces(addr, memory.RoundPageUp(size))
	return nil
}

func (t *TraceMachine) ExecuteLoad16(addr uint64) (uint16, error) {
	return t.mem.ExecuteLoad16(addr)
}

func (t *TraceMachine) Load8(addr uint64) (uint64, error)  { return t.mem.Load8(addr) }
func (t *TraceMachine) Load16(addr uint64) (uint64, error) { return t.mem.Load16(addr) }
func (t *TraceMachine) Load32(addr uint64) (uint64, error) { return t.mem.Load32(addr) }
func (t *TraceMachine) Load64(addr uint64) (uint64, error) { return t.mem.Load64(addr) }

func (t *TraceMachine) LoadBytes(addr uint64, size uint64) ([]byte, error) {
	return t.mem.LoadBytes(addr, size)
}

func (t *TraceMachine) Store8(addr uint64, v uint64) error {
	if err := t.mem.Store8(addr, v); err != nil {
		return err
	}
	t.clearTraces(addr, 1)
	return nil
}

func (t *TraceMachine) Store16(addr uint64, v uint64) error {
	if err := t.mem.Store16(addr, v); err != nil {
		return err
	}
	t.clearTraces(addr, 2)
	return nil
}

func (t *TraceMachine) Store32(addr uint64, v uint64) error {
	if err := t.mem.Store32(addr, v); err != nil {
		return err
	}
	t.clearTraces(addr, 4)
	return nil
}

func (t *TraceMachine) Store64(addr uint64, v uint64) error {
	if err := t.mem.Store64(addr, v); err != nil {
		return err
	}
	t.clearTraces(addr, 8)
	return nil
}

func (t *TraceMachine) StoreBytes(addr uint64, value []byte) error {
	if err := t.mem.StoreBytes(addr, value); err != nil {
		return err
	}
	t.clearTraces(addr, uint64(len(value)))
	return nil
}

func (t *TraceMachine) StoreByte(addr uint64, size uint64, value uint8) error {
	if err := t.mem.StoreByte(addr, size, value); err != nil {
		return err
	}
	t.clearTraces(addr, size)
	return nil
}
