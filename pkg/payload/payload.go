// Package payload builds RCM exploit images out of raw payload binaries.
//
// The image layout is fixed by the Tegra X1 boot ROM: a length word, padding
// up to the start of IRAM, the intermezzo stub, the first 0x4000 bytes of the
// payload, a stack spray pointing back at RCM_PAYLOAD_ADDR, and the rest of
// the payload. More info: https://github.com/Qyriad/fusee-launcher
package payload

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/ulikunitz/xz"

	"github.com/nxboot/rcmx/pkg/rcmerr"
)

const (
	// BuiltMaxLength is the size of the envelope the boot ROM accepts, and
	// the first word of every built image.
	BuiltMaxLength = 0x30298
	// MinLength is the smallest accepted payload (inclusive): everything up
	// to the stack spray must be payload.
	MinLength = stackSprayStart - payloadStartAddr
	// MaxLength is the largest accepted payload (exclusive).
	MaxLength = 183640

	// PacketSize is the USB packet size the image is staged in, and its
	// alignment.
	PacketSize = 0x1000

	// iramOffset is where IRAM (RCM_PAYLOAD_ADDR) starts in the image.
	iramOffset = 680

	rcmPayloadAddr   = 0x40010000
	payloadStartAddr = 0x40010E40
	stackSprayStart  = 0x40014E40
	stackSprayEnd    = 0x40017000

	// SprayRepeatCount is the number of RCM_PAYLOAD_ADDR words in the spray.
	SprayRepeatCount = (stackSprayEnd - stackSprayStart) / 4
)

// Payload is a built RCM image. It is immutable; share it by pointer.
type Payload struct {
	data []byte
}

// Data returns the image bytes. Callers must not modify them.
func (p *Payload) Data() []byte {
	return p.data
}

// Len is the size of the built image in bytes.
func (p *Payload) Len() int {
	return len(p.data)
}

// WriteTo writes the built image to w.
func (p *Payload) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.data)
	return int64(n), err
}

// Build wraps code into an RCM image. code must be at least MinLength and
// less than MaxLength bytes long.
func Build(code []byte) (*Payload, error) {
	if len(code) < MinLength {
		return nil, rcmerr.PayloadTooShortErr(len(code))
	}
	if len(code) >= MaxLength {
		return nil, rcmerr.PayloadTooLongErr(len(code))
	}
	buf := bytes.NewBuffer(make([]byte, 0, BuiltMaxLength))

	// Start with the length the stub will read back.
	binary.Write(buf, binary.LittleEndian, uint32(BuiltMaxLength))
	// Pad to the start of IRAM.
	buf.Write(make([]byte, iramOffset-buf.Len()))
	buf.Write(intermezzo)
	// Pad to PAYLOAD_START_ADDR.
	buf.Write(make([]byte, payloadStartAddr-(rcmPayloadAddr+len(intermezzo))))

	// The first part of the payload fits right before the spray.
	split := stackSprayStart - payloadStartAddr
	buf.Write(code[:split])
	spray := make([]byte, 4)
	binary.LittleEndian.PutUint32(spray, rcmPayloadAddr)
	buf.Write(bytes.Repeat(spray, SprayRepeatCount))
	buf.Write(code[split:])

	// Pad to a packet boundary. An already aligned image still gets a full
	// page of padding, like every reference builder.
	buf.Write(make([]byte, PacketSize-(buf.Len()%PacketSize)))

	data := buf.Bytes()
	if len(data)%PacketSize != 0 {
		panic(fmt.Sprintf("built image is %#x bytes, not packet aligned", len(data)))
	}
	if len(data) > BuiltMaxLength {
		panic(fmt.Sprintf("built image is %#x bytes, larger than %#x", len(data), BuiltMaxLength))
	}
	glog.V(1).Infof("Built %d byte image from %d byte payload", len(data), len(code))
	return &Payload{data: data}, nil
}

// Read builds an image from the payload at path. Files ending in .xz are
// decompressed first.
func Read(path string) (*Payload, error) {
	code, err := readFile(path)
	if err != nil {
		return nil, rcmerr.PayloadReadErr(path, err)
	}
	return Build(code)
}

func readFile(path string) ([]byte, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".xz") {
		return os.ReadFile(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("xz: %w", err)
	}
	// Anything bigger than MaxLength will be rejected anyway, no point in
	// inflating an arbitrarily large stream.
	data, err := io.ReadAll(io.LimitReader(r, MaxLength+1))
	if err != nil {
		return nil, fmt.Errorf("xz: %w", err)
	}
	glog.Infof("Decompressed %s (%d bytes)", path, len(data))
	return data, nil
}
