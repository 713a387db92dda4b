package payload

import (
	"fmt"

	"github.com/nxboot/rcmx/pkg/uasm"
)

const (
	// Where the intermezzo moves itself before reassembling the payload over
	// its own original location. It has to stay clear of every range the
	// copies below read or write, so it goes below RCM_PAYLOAD_ADDR into
	// IRAM the boot ROM no longer uses.
	intermezzoRelocatedAddr = 0x4000F000
	// Everything staged past the spray, up to the end of the envelope.
	afterSprayLength = rcmPayloadAddr + BuiltMaxLength - iramOffset - stackSprayEnd

	intermezzoLength = 124
	// Offset of post_relocation, which starts the relocated part.
	postRelocationOffset = 0x20
)

// intermezzoProgram runs at RCM_PAYLOAD_ADDR, exactly where the payload has to
// end up. It first copies the rest of itself out of the way, then stitches
// the payload halves (before and after the stack spray) back together at
// RCM_PAYLOAD_ADDR and jumps there.
//
// copy takes r0 = destination, r1 = source, r2 = length in bytes.
var intermezzoProgram = uasm.Program{
	Address: rcmPayloadAddr,
	Listing: []uasm.Statement{
		uasm.Ldr{Dest: uasm.R0, Src: uasm.Constant(intermezzoRelocatedAddr)},
		uasm.Ldr{Dest: uasm.R1, Src: uasm.LabelRef("post_relocation")},
		uasm.Mov{Dest: uasm.R2, Src: uasm.Immediate(intermezzoLength - postRelocationOffset)},
		uasm.Bl{Dest: uasm.LabelRef("copy")},
		uasm.Ldr{Dest: uasm.R0, Src: uasm.Constant(intermezzoRelocatedAddr)},
		uasm.Bx{Dest: uasm.R0},

		uasm.Nop,
		uasm.Nop,
		uasm.Label("post_relocation"),
		uasm.Ldr{Dest: uasm.R0, Src: uasm.Constant(rcmPayloadAddr)},
		uasm.Ldr{Dest: uasm.R1, Src: uasm.Constant(payloadStartAddr)},
		uasm.Mov{Dest: uasm.R2, Src: uasm.Immediate(MinLength)},
		uasm.Bl{Dest: uasm.LabelRef("copy")},

		uasm.Ldr{Dest: uasm.R0, Src: uasm.Constant(rcmPayloadAddr)},
		uasm.Mov{Dest: uasm.R1, Src: uasm.Immediate(MinLength)},
		uasm.Add{Dest: uasm.R0, Src: uasm.R0, Compl: uasm.R1},
		uasm.Ldr{Dest: uasm.R1, Src: uasm.Constant(stackSprayEnd)},
		uasm.Ldr{Dest: uasm.R2, Src: uasm.Constant(afterSprayLength)},
		uasm.Bl{Dest: uasm.LabelRef("copy")},

		uasm.Ldr{Dest: uasm.R0, Src: uasm.Constant(rcmPayloadAddr)},
		uasm.Bx{Dest: uasm.R0},

		uasm.Label("copy"),
		uasm.LdrPost{Dest: uasm.R3, Base: uasm.R1, Offset: 4},
		uasm.StrPost{Src: uasm.R3, Base: uasm.R0, Offset: 4},
		uasm.Subs{Dest: uasm.R2, Src: uasm.R2, Compl: uasm.Immediate(4)},
		uasm.B{Cond: uasm.NE, Dest: uasm.LabelRef("copy")},
		uasm.Bx{Dest: uasm.LR},
		// Constant pool follows, and is relocated along with the code.
	},
}

var intermezzo = assembleIntermezzo()

func assembleIntermezzo() []byte {
	off, err := intermezzoProgram.Offset("post_relocation")
	if err != nil {
		panic(err)
	}
	if off != postRelocationOffset {
		panic(fmt.Sprintf("post_relocation at %#x, want %#x", off, postRelocationOffset))
	}
	res := intermezzoProgram.Assemble()
	if len(res) != intermezzoLength {
		panic(fmt.Sprintf("intermezzo is %d bytes, want %d", len(res), intermezzoLength))
	}
	return res
}
