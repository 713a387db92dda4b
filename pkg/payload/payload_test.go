package payload

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/nxboot/rcmx/pkg/rcmerr"
)

// Offset of the first payload byte in a built image.
const codeOffset = iramOffset + (payloadStartAddr - rcmPayloadAddr)

func code(n int) []byte {
	c := make([]byte, n)
	for i := range c {
		c[i] = byte(i%251) + 1
	}
	return c
}

// TestReference checks the builder's layout against a known-good image. The
// stub itself is ours, so its bytes are left out of the comparison.
func TestReference(t *testing.T) {
	in, err := os.ReadFile("testdata/hekate_ctcaer_5.7.2.bin")
	if err != nil {
		t.Skipf("reference payload not available: %v", err)
	}
	want, err := os.ReadFile("testdata/hekate_ctcaer_5.7.2_ref_payload.bin")
	if err != nil {
		t.Skipf("reference image not available: %v", err)
	}
	p, err := Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got := p.Data()
	if len(got) != len(want) {
		t.Fatalf("built image is %#x bytes, reference is %#x", len(got), len(want))
	}
	stub := iramOffset + intermezzoLength
	if !bytes.Equal(got[:iramOffset], want[:iramOffset]) || !bytes.Equal(got[stub:], want[stub:]) {
		t.Fatalf("built image differs from reference")
	}
}

func TestBoundaries(t *testing.T) {
	if _, err := Build(code(MinLength - 1)); !errors.Is(err, rcmerr.ErrPayloadTooShort) {
		t.Errorf("MinLength-1: wanted PayloadTooShort, got %v", err)
	}
	if _, err := Build(code(MaxLength)); !errors.Is(err, rcmerr.ErrPayloadTooLong) {
		t.Errorf("MaxLength: wanted PayloadTooLong, got %v", err)
	}
	if _, err := Build(code(MinLength)); err != nil {
		t.Errorf("MinLength: %v", err)
	}
	if _, err := Build(code(MaxLength - 1)); err != nil {
		t.Errorf("MaxLength-1: %v", err)
	}
	if _, err := Build(nil); !errors.Is(err, rcmerr.ErrPayloadTooShort) {
		t.Errorf("nil: wanted PayloadTooShort, got %v", err)
	}

	var e *rcmerr.Error
	_, err := Build(code(100))
	if !errors.As(err, &e) || e.Length != 100 {
		t.Errorf("wanted length 100 in error, got %v", err)
	}
}

func TestLengthInvariants(t *testing.T) {
	for _, n := range []int{MinLength, MinLength + 1, 0x8000, 19800, 100000, MaxLength - 4096, MaxLength - 1} {
		p, err := Build(code(n))
		if err != nil {
			t.Fatalf("%d: %v", n, err)
		}
		l := p.Len()
		if l == 0 || l%PacketSize != 0 {
			t.Errorf("%d: image length %#x not a positive multiple of %#x", n, l, PacketSize)
		}
		if l > BuiltMaxLength {
			t.Errorf("%d: image length %#x exceeds %#x", n, l, BuiltMaxLength)
		}
	}
}

func TestAlignedGetsExtraPage(t *testing.T) {
	// 19800 bytes of payload end exactly on a packet boundary.
	p, err := Build(code(19800))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if want, got := 0x9000, p.Len(); want != got {
		t.Fatalf("wanted %#x bytes, got %#x", want, got)
	}
}

func TestLayout(t *testing.T) {
	c := code(MinLength + 0x100)
	p, err := Build(c)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d := p.Data()

	if want, got := uint32(BuiltMaxLength), binary.LittleEndian.Uint32(d[0:4]); want != got {
		t.Errorf("length word: wanted %#x, got %#x", want, got)
	}
	if !bytes.Equal(d[4:iramOffset], make([]byte, iramOffset-4)) {
		t.Errorf("padding before IRAM is not zero")
	}
	if !bytes.Equal(d[iramOffset:iramOffset+intermezzoLength], intermezzo) {
		t.Errorf("intermezzo not at IRAM start")
	}
	if !bytes.Equal(d[iramOffset+intermezzoLength:codeOffset], make([]byte, codeOffset-iramOffset-intermezzoLength)) {
		t.Errorf("padding after intermezzo is not zero")
	}
	if !bytes.Equal(d[codeOffset:codeOffset+MinLength], c[:MinLength]) {
		t.Errorf("first part of payload not at PAYLOAD_START_ADDR")
	}

	sprayEnd := codeOffset + MinLength + SprayRepeatCount*4
	if !bytes.Equal(d[sprayEnd:sprayEnd+0x100], c[MinLength:]) {
		t.Errorf("second part of payload not after the spray")
	}
	for i, b := range d[sprayEnd+0x100:] {
		if b != 0 {
			t.Fatalf("trailing padding has non-zero byte at %#x", sprayEnd+0x100+i)
		}
	}
}

func TestStackSpray(t *testing.T) {
	p, err := Build(code(MinLength + 0x1234))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	spray := p.Data()[codeOffset+MinLength:]
	for i := 0; i < SprayRepeatCount; i++ {
		if w := binary.LittleEndian.Uint32(spray[i*4:]); w != rcmPayloadAddr {
			t.Fatalf("spray word %d: wanted %#x, got %#x", i, rcmPayloadAddr, w)
		}
	}
	if w := binary.LittleEndian.Uint32(spray[SprayRepeatCount*4:]); w == rcmPayloadAddr {
		t.Errorf("spray runs past %d words", SprayRepeatCount)
	}
}

func TestIntermezzo(t *testing.T) {
	if want, got := intermezzoLength, len(intermezzo); want != got {
		t.Fatalf("intermezzo: wanted %d bytes, got %d", want, got)
	}
	want, _ := hex.DecodeString("5c009fe55c109fe55c20a0e30f0000eb4c009fe510ff2fe10000a0e10000a0e144009fe544109fe50129a0e3070000eb34009fe50119a0e3010080e030109fe530209fe5010000eb1c009fe510ff2fe1043091e4043080e4042052e2fbffff1a1eff2fe100f000402000014000000140400e014000700140f08f0200")
	if !bytes.Equal(intermezzo, want) {
		t.Errorf("wrong intermezzo assembly:\n%x", intermezzo)
	}
	// The literal pool ends with the addresses the stub copies around.
	pool := intermezzo[len(intermezzo)-16:]
	for i, want := range []uint32{rcmPayloadAddr, payloadStartAddr, stackSprayEnd} {
		if got := binary.LittleEndian.Uint32(pool[i*4:]); got != want {
			t.Errorf("literal %d: wanted %#x, got %#x", i, want, got)
		}
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	c := code(MinLength + 42)

	plain := filepath.Join(dir, "payload.bin")
	if err := os.WriteFile(plain, c, 0600); err != nil {
		t.Fatal(err)
	}
	p1, err := Read(plain)
	if err != nil {
		t.Fatalf("Read(plain): %v", err)
	}

	var compressed bytes.Buffer
	w, err := xz.NewWriter(&compressed)
	if err != nil {
		t.Fatal(err)
	}
	w.Write(c)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	packed := filepath.Join(dir, "payload.bin.xz")
	if err := os.WriteFile(packed, compressed.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
	p2, err := Read(packed)
	if err != nil {
		t.Fatalf("Read(xz): %v", err)
	}
	if !bytes.Equal(p1.Data(), p2.Data()) {
		t.Errorf("xz and plain payloads differ")
	}

	missing := filepath.Join(dir, "nope.bin")
	_, err = Read(missing)
	var e *rcmerr.Error
	if !errors.As(err, &e) || e.Kind != rcmerr.PayloadRead || e.Path != missing {
		t.Errorf("wanted PayloadRead for %s, got %v", missing, err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("wanted cause ErrNotExist, got %v", err)
	}
}
