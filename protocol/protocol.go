// Package protocol implements the wire format used between the requesting core and the
// peripheral-owning core: VLQ-encoded envelopes carried in CRC-checked frames.
package protocol

// Version of the envelope encoding.
const Version = "0.1.0"

// Frame layout: [len][seq] payload [crc hi][crc lo][sync]
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E

	// MessageDest is OR'd into every sequence byte; the low nibble counts frames.
	MessageDest    = 0x10
	MessageSeqMask = 0x0F

	// MessageMax bounds a single encoded payload.
	MessageMax = MessageLengthMax - MessageLengthMin
)

// Message ids multiplexed over one inter-processor channel.
const (
	MsgIDAIO uint8 = 0x02
)
