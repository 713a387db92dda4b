package rcm

// BufferState is which of the two RCM DMA buffers the next copy reads from.
// The zero value is BufferLow.
type BufferState uint8

const (
	BufferLow BufferState = iota
	BufferHigh
)

const (
	copyBufferAddressLow  = 0x40005000
	copyBufferAddressHigh = 0x40009000
)

// Toggle flips the buffer. The device switches buffers after every packet.
func (b *BufferState) Toggle() {
	switch *b {
	case BufferHigh:
		*b = BufferLow
	default:
		*b = BufferHigh
	}
}

// Address is the device memory address of the buffer.
func (b BufferState) Address() uint32 {
	if b == BufferHigh {
		return copyBufferAddressHigh
	}
	return copyBufferAddressLow
}

func (b BufferState) String() string {
	switch b {
	case BufferLow:
		return "low"
	case BufferHigh:
		return "high"
	}
	return "UNKNOWN"
}
