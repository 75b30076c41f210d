package audio

import (
	"bytes"
	"fmt"

	"github.com/hraban/opus"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

const (
	opusSampleRate = 16000
	// one 60 ms frame per Ogg page
	opusFrameSamples = opusSampleRate * 60 / 1000
	// Ogg Opus granule positions always count 48 kHz samples
	opusGranuleStep    = 48000 * 60 / 1000
	opusDefaultBitrate = 16000
	opusMaxPacket      = 4000
	opusPayloadType    = 111
)

// oggPageOverhead is the approximate per-packet cost of an Ogg page header
// and segment table for one small Opus packet
const oggPageOverhead = 28

// opusEncoder produces Ogg Opus pages. Each chunk holds whole pages so the
// concatenated chunks are themselves a valid Ogg stream.
type opusEncoder struct {
	enc     *opus.Encoder
	ogg     *oggwriter.OggWriter
	out     bytes.Buffer
	pending []int16
	packet  []byte
	seq     uint16
	ts      uint32
	err     error
}

// NewOpusEncoder returns a 16 kHz mono Ogg Opus encoder. A bitrate of zero
// uses 16 kbps.
func NewOpusEncoder(bitrate int) (Encoder, error) {
	if bitrate <= 0 {
		bitrate = opusDefaultBitrate
	}

	enc, err := opus.NewEncoder(opusSampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("failed to set opus bitrate %d: %w", bitrate, err)
	}

	e := &opusEncoder{
		enc:    enc,
		packet: make([]byte, opusMaxPacket),
		ts:     opusGranuleStep,
	}
	// The ID and comment header pages are written here and leave with the
	// first chunk.
	e.ogg, err = oggwriter.NewWith(&e.out, opusSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create ogg writer: %w", err)
	}
	return e, nil
}

func (e *opusEncoder) MimeType() string { return MimeOggOpus }

func (e *opusEncoder) Format() Format {
	return Format{SampleRate: opusSampleRate, Channels: 1, Latency: HighStability}
}

// Encode encodes every whole frame available and keeps the remainder for
// the next call.
func (e *opusEncoder) Encode(samples []int16) []byte {
	e.pending = append(e.pending, samples...)
	for len(e.pending) >= opusFrameSamples && e.err == nil {
		e.writeFrame(e.pending[:opusFrameSamples])
		e.pending = e.pending[opusFrameSamples:]
	}
	return e.drain()
}

// Assemble flushes the last partial frame, padded with silence. The payload
// is already an Ogg stream.
func (e *opusEncoder) Assemble(payload []byte) ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	if len(e.pending) > 0 {
		frame := make([]int16, opusFrameSamples)
		copy(frame, e.pending)
		e.pending = nil
		e.writeFrame(frame)
		if e.err != nil {
			return nil, e.err
		}
	}

	tail := e.drain()
	data := make([]byte, 0, len(payload)+len(tail))
	data = append(data, payload...)
	return append(data, tail...), nil
}

func (e *opusEncoder) writeFrame(frame []int16) {
	n, err := e.enc.Encode(frame, e.packet)
	if err != nil {
		e.err = fmt.Errorf("opus encode failed: %w", err)
		return
	}

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayloadType,
			SequenceNumber: e.seq,
			Timestamp:      e.ts,
		},
		Payload: append([]byte(nil), e.packet[:n]...),
	}
	if err := e.ogg.WriteRTP(pkt); err != nil {
		e.err = fmt.Errorf("ogg page write failed: %w", err)
		return
	}
	e.seq++
	e.ts += opusGranuleStep
}

func (e *opusEncoder) drain() []byte {
	if e.out.Len() == 0 {
		return nil
	}
	chunk := append([]byte(nil), e.out.Bytes()...)
	e.out.Reset()
	return chunk
}
