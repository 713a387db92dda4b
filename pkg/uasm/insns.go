package uasm

type Ldr struct {
	instruction
	Dest Register
	Src  LoadSource
}

func (l Ldr) hydrate(c *ctx) []byte {
	var res uint32
	res |= l.Src.encodeLoadSource(c)
	res |= l.Dest.Encode() << 12
	res |= 0b111001011001 << 20
	return p32(res)
}

// LdrPost is ldr Dest, [Base], #Offset: a word load that then advances Base.
type LdrPost struct {
	instruction
	Dest   Register
	Base   Register
	Offset uint16
}

func (l LdrPost) hydrate(c *ctx) []byte {
	if l.Offset >= (1 << 12) {
		panic("offset too large")
	}
	var res uint32
	res |= uint32(l.Offset)
	res |= l.Dest.Encode() << 12
	res |= l.Base.Encode() << 16
	res |= 0b111001001001 << 20
	return p32(res)
}

// StrPost is str Src, [Base], #Offset: a word store that then advances Base.
type StrPost struct {
	instruction
	Src    Register
	Base   Register
	Offset uint16
}

func (s StrPost) hydrate(c *ctx) []byte {
	if s.Offset >= (1 << 12) {
		panic("offset too large")
	}
	var res uint32
	res |= uint32(s.Offset)
	res |= s.Src.Encode() << 12
	res |= s.Base.Encode() << 16
	res |= 0b111001001000 << 20
	return p32(res)
}

type Bx struct {
	instruction
	Dest Register
}

func (b Bx) hydrate(c *ctx) []byte {
	var res uint32
	res |= b.Dest.Encode()
	res |= 0b1110000100101111111111110001 << 4
	return p32(res)
}

type B struct {
	instruction
	Cond Condition
	Dest BranchTarget
}

func (b B) hydrate(c *ctx) []byte {
	var res uint32
	res |= branchOffset(c.instrAddr, b.Dest.resolveBranchTarget(c))
	res |= 0b1010 << 24
	res |= b.Cond.Encode()
	return p32(res)
}

type Bl struct {
	instruction
	Dest BranchTarget
}

func (b Bl) hydrate(c *ctx) []byte {
	var res uint32
	res |= branchOffset(c.instrAddr, b.Dest.resolveBranchTarget(c))
	res |= 0b1011 << 24
	res |= AL.Encode()
	return p32(res)
}

type Mov struct {
	instruction
	Dest Register
	Src  DataSource
}

func (m Mov) hydrate(c *ctx) []byte {
	var res uint32
	res |= m.Src.encodeDataSource(c)
	res |= m.Dest.Encode() << 12
	res |= 0b1110000110100000 << 16
	return p32(res)
}

// Nop is mov r0, r0.
var Nop = Mov{Dest: R0, Src: R0}

type Add struct {
	instruction
	Dest  Register
	Src   Register
	Compl DataSource
}

func (a Add) hydrate(c *ctx) []byte {
	var res uint32
	res |= a.Dest.Encode() << 12
	res |= a.Src.Encode() << 16
	res |= a.Compl.encodeDataSource(c)
	res |= 0b111000001000 << 20
	return p32(res)
}

// Subs subtracts and sets the condition flags.
type Subs struct {
	instruction
	Dest  Register
	Src   Register
	Compl DataSource
}

func (a Subs) hydrate(c *ctx) []byte {
	var res uint32
	res |= a.Dest.Encode() << 12
	res |= a.Src.Encode() << 16
	res |= a.Compl.encodeDataSource(c)
	res |= 0b111000000101 << 20
	return p32(res)
}
