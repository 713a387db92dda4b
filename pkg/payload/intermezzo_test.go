package payload

import (
	"bytes"
	"encoding/binary"
	"math/bits"
	"testing"
)

const (
	iramBase = 0x40000000
	iramSize = 0x40000
)

// cpu interprets the handful of ARM instructions the intermezzo is made of,
// against a flat IRAM. Anything else is a test failure, which is also what
// running into clobbered code looks like.
type cpu struct {
	t    *testing.T
	r    [16]uint32
	z    bool
	iram []byte
}

func newCPU(t *testing.T) *cpu {
	return &cpu{t: t, iram: make([]byte, iramSize)}
}

func (c *cpu) index(addr uint32) uint32 {
	c.t.Helper()
	if addr < iramBase || addr+4 > iramBase+iramSize || addr%4 != 0 {
		c.t.Fatalf("access to %#x outside IRAM", addr)
	}
	return addr - iramBase
}

func (c *cpu) load(addr uint32) uint32 {
	c.t.Helper()
	return binary.LittleEndian.Uint32(c.iram[c.index(addr):])
}

func (c *cpu) store(addr, val uint32) {
	c.t.Helper()
	binary.LittleEndian.PutUint32(c.iram[c.index(addr):], val)
}

func rotatedImmediate(insn uint32) uint32 {
	return bits.RotateLeft32(insn&0xff, -int(insn>>8&0xf)*2)
}

// run executes from pc until a branch lands on exit, and returns the number
// of instructions executed.
func (c *cpu) run(pc, exit uint32, limit int) int {
	c.t.Helper()
	for steps := 1; steps <= limit; steps++ {
		insn := c.load(pc)
		next := pc + 4
		rd, rn := insn>>12&0xf, insn>>16&0xf
		base := c.r[rn]
		if rn == 15 {
			base = pc + 8
		}

		switch insn >> 28 {
		case 0xe:
		case 0x1:
			if c.z {
				pc = next
				continue
			}
		default:
			c.t.Fatalf("unsupported condition in %#08x at %#x", insn, pc)
		}

		switch {
		case insn&0x0ffffff0 == 0x012fff10: // bx
			next = c.r[insn&0xf]
		case insn&0x0e000000 == 0x0a000000: // b, bl
			if insn&(1<<24) != 0 {
				c.r[14] = pc + 4
			}
			next = pc + 8 + uint32(int32(insn<<8)>>6)
		case insn&0x0ff00000 == 0x05900000: // ldr rd, [rn, #imm]
			c.r[rd] = c.load(base + insn&0xfff)
		case insn&0x0ff00000 == 0x04900000: // ldr rd, [rn], #imm
			c.r[rd] = c.load(base)
			c.r[rn] += insn & 0xfff
		case insn&0x0ff00000 == 0x04800000: // str rd, [rn], #imm
			c.store(base, c.r[rd])
			c.r[rn] += insn & 0xfff
		case insn&0x0fef0000 == 0x03a00000: // mov rd, #imm
			c.r[rd] = rotatedImmediate(insn)
		case insn&0x0fef0ff0 == 0x01a00000: // mov rd, rm
			c.r[rd] = c.r[insn&0xf]
		case insn&0x0fe00ff0 == 0x00800000: // add rd, rn, rm
			c.r[rd] = base + c.r[insn&0xf]
		case insn&0x0ff00000 == 0x02500000: // subs rd, rn, #imm
			c.r[rd] = base - rotatedImmediate(insn)
			c.z = c.r[rd] == 0
		default:
			c.t.Fatalf("unsupported instruction %#08x at %#x", insn, pc)
		}

		if next == exit {
			return steps
		}
		pc = next
	}
	c.t.Fatalf("no jump to %#x within %d instructions", exit, limit)
	return 0
}

// TestIntermezzoRuns loads built images into IRAM the way the boot ROM does,
// runs the intermezzo, and checks that the payload ends up contiguous at
// RCM_PAYLOAD_ADDR by the time control reaches it.
func TestIntermezzoRuns(t *testing.T) {
	for _, n := range []int{MinLength, MinLength + 0x1234, MaxLength - 1} {
		c := code(n)
		p, err := Build(c)
		if err != nil {
			t.Fatalf("Build(%d): %v", n, err)
		}
		img := p.Data()[iramOffset:]

		m := newCPU(t)
		copy(m.iram[rcmPayloadAddr-iramBase:], img)
		m.run(rcmPayloadAddr, rcmPayloadAddr, 1<<20)

		got := m.iram[rcmPayloadAddr-iramBase:][:n]
		if !bytes.Equal(c, got) {
			i := 0
			for c[i] == got[i] {
				i++
			}
			t.Errorf("payload of %#x bytes: first difference at offset %#x", n, i)
		}
	}
}

// TestIntermezzoCopyLengths checks the stub's constants against the image
// layout independently of how it is assembled.
func TestIntermezzoCopyLengths(t *testing.T) {
	// The second copy must pick up everything the ROM received past the
	// spray, and nothing beyond it.
	received := uint32(rcmPayloadAddr + BuiltMaxLength - iramOffset)
	if want, got := received-stackSprayEnd, uint32(afterSprayLength); want != got {
		t.Errorf("after-spray length: wanted %#x, got %#x", want, got)
	}
	if want, got := uint32(0x28ff0), uint32(afterSprayLength); want != got {
		t.Errorf("after-spray length: wanted %#x, got %#x", want, got)
	}
	if afterSprayLength%4 != 0 || MinLength%4 != 0 {
		t.Errorf("copy lengths must be word multiples")
	}

	// The relocated stub must not overlap anything the copies touch.
	lo := uint32(intermezzoRelocatedAddr)
	hi := lo + intermezzoLength - postRelocationOffset
	for _, r := range []struct {
		name     string
		from, to uint32
	}{
		{"first source", payloadStartAddr, payloadStartAddr + MinLength},
		{"first destination", rcmPayloadAddr, rcmPayloadAddr + MinLength},
		{"second source", stackSprayEnd, stackSprayEnd + afterSprayLength},
		{"second destination", rcmPayloadAddr + MinLength, rcmPayloadAddr + MinLength + afterSprayLength},
	} {
		if lo < r.to && r.from < hi {
			t.Errorf("relocated stub [%#x, %#x) overlaps %s [%#x, %#x)", lo, hi, r.name, r.from, r.to)
		}
	}
}
