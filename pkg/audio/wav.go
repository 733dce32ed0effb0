package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

const wavHeaderSize = 44

// EncodeWAV wraps raw 16-bit PCM in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, f Format) []byte {
	byteRate := f.BytesPerSecond()
	blockAlign := f.Channels * bytesPerSample
	size := len(pcm)

	buf := make([]byte, wavHeaderSize+size)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+size))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 8*bytesPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(size))
	copy(buf[wavHeaderSize:], pcm)
	return buf
}

// WriteWAV writes b to w as a WAV file at the given gain.
func WriteWAV(w io.Writer, b *Buffer, gain float32) error {
	if b == nil || b.Len() == 0 {
		return ErrEmptyPayload
	}
	if _, err := w.Write(EncodeWAV(b.PCM16(0, b.Len(), gain), b.Format)); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	return nil
}
