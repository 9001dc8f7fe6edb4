package fixtures

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// PCMFormat 测试 WAV 文件的格式
type PCMFormat struct {
	Channels   int
	SampleBits int
	SampleRate int
}

// StereoPCM16 立体声 16 bit 16kHz，与默认音频通道配置一致
var StereoPCM16 = PCMFormat{Channels: 2, SampleBits: 16, SampleRate: 16000}

// Ramp 生成 n 个递增样本（按位宽回绕），便于逐字节比对
func Ramp(n int, bits int) []int {
	out := make([]int, n)
	limit := 1 << (bits - 1)
	for i := range out {
		out[i] = i%(2*limit) - limit
	}
	return out
}

// WriteWAV 在 dir 下写入 WAV 文件并返回路径
func WriteWAV(t *testing.T, dir, name string, format PCMFormat, samples []int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, format.SampleRate, format.SampleBits, format.Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           samples,
		SourceBitDepth: format.SampleBits,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("finalize %s: %v", path, err)
	}
	return path
}

// ReadWAV 读取 WAV 文件的全部样本
func ReadWAV(t *testing.T, path string) (PCMFormat, []int) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	format := PCMFormat{
		Channels:   int(dec.NumChans),
		SampleBits: int(dec.BitDepth),
		SampleRate: int(dec.SampleRate),
	}
	return format, buf.Data
}
