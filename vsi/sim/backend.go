package sim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Source 输入外设的数据来源（外设到内存）
type Source interface {
	io.Reader
}

// Sink 输出外设的数据去向（内存到外设）
type Sink interface {
	io.Writer
}

// PatternSource 无限重复 pattern 的数据源；pattern 为空时输出静音（全 0）
type PatternSource struct {
	pattern []byte
	pos     int
}

// NewPatternSource 创建重复数据源
func NewPatternSource(pattern []byte) *PatternSource {
	return &PatternSource{pattern: append([]byte(nil), pattern...)}
}

// Read 实现 io.Reader
func (s *PatternSource) Read(p []byte) (int, error) {
	if len(s.pattern) == 0 {
		clear(p)
		return len(p), nil
	}
	for i := range p {
		p[i] = s.pattern[s.pos]
		s.pos = (s.pos + 1) % len(s.pattern)
	}
	return len(p), nil
}

// CaptureSink 在内存中累积写入的数据，用于测试
type CaptureSink struct {
	data []byte
}

// Write 实现 io.Writer
func (s *CaptureSink) Write(p []byte) (int, error) {
	s.data = append(s.data, p...)
	return len(p), nil
}

// Bytes 返回已写入的数据副本
func (s *CaptureSink) Bytes() []byte {
	return append([]byte(nil), s.data...)
}

// =============================================================================
// 📁 文件后端
// =============================================================================

// AudioFormat 打开 WAV 文件时使用的 PCM 参数
type AudioFormat struct {
	Channels   int
	SampleBits int
	SampleRate int
}

// openSource 打开输入文件。.wav 文件解码为 PCM 数据，其余文件按原始字节读取。
func openSource(root, name string) (io.ReadCloser, error) {
	path, err := resolve(root, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !isWAV(path) {
		return f, nil
	}
	r, err := newWAVReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open wav %s: %w", name, err)
	}
	return r, nil
}

// openSink 创建输出文件。.wav 文件按 format 编码，其余文件写入原始字节。
func openSink(root, name string, format AudioFormat) (io.WriteCloser, error) {
	path, err := resolve(root, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if !isWAV(path) {
		return f, nil
	}
	w, err := newWAVWriter(f, format)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create wav %s: %w", name, err)
	}
	return w, nil
}

// resolve 文件名必须位于 root 之内
func resolve(root, name string) (string, error) {
	if root == "" {
		return "", errors.New("file backend disabled: no file root")
	}
	clean := filepath.Clean("/" + name)
	path := filepath.Join(root, clean)
	if !strings.HasPrefix(path, filepath.Clean(root)+string(filepath.Separator)) {
		return "", fmt.Errorf("file %q escapes root", name)
	}
	return path, nil
}

func isWAV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".wav")
}

// wavReader 把 WAV 样本重新打包为小端 PCM 字节流
type wavReader struct {
	f       *os.File
	dec     *wav.Decoder
	buf     *audio.IntBuffer
	bytes   int
	pending []byte
	eof     bool
}

func newWAVReader(f *os.File) (*wavReader, error) {
	dec := wav.NewDecoder(f)
	if err := dec.FwdToPCM(); err != nil {
		return nil, err
	}
	bits := int(dec.BitDepth)
	if bits == 0 || bits%8 != 0 || bits > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", bits)
	}
	return &wavReader{
		f:   f,
		dec: dec,
		buf: &audio.IntBuffer{
			Format: &audio.Format{NumChannels: int(dec.NumChans), SampleRate: int(dec.SampleRate)},
			Data:   make([]int, 1024),
		},
		bytes: bits / 8,
	}, nil
}

func (r *wavReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		n, err := r.dec.PCMBuffer(r.buf)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if n == 0 {
			r.eof = true
			continue
		}
		r.pending = packSamples(r.pending[:0], r.buf.Data[:n], r.bytes)
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *wavReader) Close() error {
	return r.f.Close()
}

// wavWriter 把小端 PCM 字节流编码为 WAV 样本
type wavWriter struct {
	f       *os.File
	enc     *wav.Encoder
	format  *audio.Format
	bytes   int
	partial []byte
}

func newWAVWriter(f *os.File, format AudioFormat) (*wavWriter, error) {
	if format.SampleBits == 0 || format.SampleBits%8 != 0 || format.SampleBits > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", format.SampleBits)
	}
	if format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid audio format %+v", format)
	}
	return &wavWriter{
		f:      f,
		enc:    wav.NewEncoder(f, format.SampleRate, format.SampleBits, format.Channels, 1),
		format: &audio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		bytes:  format.SampleBits / 8,
	}, nil
}

func (w *wavWriter) Write(p []byte) (int, error) {
	data := append(w.partial, p...)
	whole := len(data) / w.bytes * w.bytes
	if whole > 0 {
		buf := &audio.IntBuffer{
			Format:         w.format,
			Data:           unpackSamples(data[:whole], w.bytes),
			SourceBitDepth: w.bytes * 8,
		}
		if err := w.enc.Write(buf); err != nil {
			return 0, err
		}
	}
	w.partial = append(w.partial[:0], data[whole:]...)
	return len(p), nil
}

func (w *wavWriter) Close() error {
	err := w.enc.Close()
	return errors.Join(err, w.f.Close())
}

// packSamples 按位宽把样本写成小端字节；8 bit WAV 为无符号样本
func packSamples(dst []byte, samples []int, width int) []byte {
	var tmp [4]byte
	for _, v := range samples {
		binary.LittleEndian.PutUint32(tmp[:], uint32(int32(v)))
		dst = append(dst, tmp[:width]...)
	}
	return dst
}

// unpackSamples packSamples 的逆操作，带符号扩展（8 bit 除外）
func unpackSamples(src []byte, width int) []int {
	out := make([]int, 0, len(src)/width)
	for i := 0; i+width <= len(src); i += width {
		var tmp [4]byte
		copy(tmp[:], src[i:i+width])
		v := binary.LittleEndian.Uint32(tmp[:])
		if width < 4 && width > 1 {
			shift := uint(32 - 8*width)
			out = append(out, int(int32(v<<shift)>>shift))
			continue
		}
		if width == 1 {
			out = append(out, int(v))
			continue
		}
		out = append(out, int(int32(v)))
	}
	return out
}
