package uasm

// DataSource is an operand which can be a source of data to a non-memory
// operation.
type DataSource interface {
	encodeDataSource(c *ctx) uint32
}

// LoadSource is an operand which can be a source of data to a memory
// operation.
type LoadSource interface {
	encodeLoadSource(c *ctx) uint32
}

// Branch target is an operand that can be interpreted as a program address.
type BranchTarget interface {
	resolveBranchTarget(c *ctx) uint32
}

// Constant is a 32-bit number that will end up in a constant pool.
type Constant uint32

func (t Constant) encodeLoadSource(c *ctx) uint32 {
	addr := c.AllocateConstant(uint32(t))
	return pcRelative(offsetForward(c.instrAddr, addr))
}

// pcRelative encodes a load from [pc, #offset].
func pcRelative(offset uint16) uint32 {
	if offset >= (1 << 12) {
		panic("offset too large")
	}
	return uint32(offset) | PC.Encode()<<16
}

// Immediate is a data source (for operations like mov, add, etc).
type Immediate uint32

func (i Immediate) encodeDataSource(c *ctx) uint32 {
	val := uint32(i)
	if val > 0xff {
		// Needs to be an 8-bit value rotated right by an even amount.
		encodable := false
		for i := 1; i < 16; i++ {
			m := ((val << uint32(i*2)) | (val >> (32 - uint32(i*2)))) & 0xffffffff
			if m < 256 {
				val = (uint32(i) << 8) | m
				encodable = true
				break
			}
		}
		if !encodable {
			panic("unencodable immediate")
		}
	}
	var res uint32
	res |= 1 << 25
	res |= val
	return res
}

func (r Register) encodeDataSource(c *ctx) uint32 {
	var res uint32
	res |= r.Encode()
	return res
}
