package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/vstream/config"
	"github.com/BaSui01/vstream/internal/app"
	"github.com/BaSui01/vstream/testutil"
	"github.com/BaSui01/vstream/testutil/mocks"
	"github.com/BaSui01/vstream/vstream"
)

func TestParseRunOptions(t *testing.T) {
	opts, err := parseRunOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, runOptions{maxBlocks: -1}, opts)

	opts, err = parseRunOptions([]string{"--config", "a.yaml", "--session", "s1", "--max-blocks", "10"})
	require.NoError(t, err)
	assert.Equal(t, runOptions{configPath: "a.yaml", session: "s1", maxBlocks: 10}, opts)

	_, err = parseRunOptions([]string{"extra"})
	assert.Error(t, err)
	_, err = parseRunOptions([]string{"--max-blocks", "many"})
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vstream.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  max_blocks: 7\nlog:\n  level: debug\n"), 0o644))

	cfg, loader, err := loadConfig(runOptions{configPath: path, maxBlocks: -1})
	require.NoError(t, err)
	assert.Equal(t, path, loader.ConfigPath())
	assert.Equal(t, 7, cfg.Session.MaxBlocks)
	assert.Equal(t, "debug", cfg.Log.Level)

	cfg, _, err = loadConfig(runOptions{configPath: path, maxBlocks: 0})
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Session.MaxBlocks)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644))
	_, _, err = loadConfig(runOptions{configPath: path, maxBlocks: -1})
	assert.Error(t, err)
}

func TestInitLogger_AtomicLevel(t *testing.T) {
	logger, level := initLogger(config.LogConfig{Level: "warn", Format: "console", OutputPaths: []string{"stderr"}})
	require.NotNil(t, logger)
	assert.Equal(t, zapcore.WarnLevel, level.Level())
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	level.SetLevel(zapcore.DebugLevel)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, level = initLogger(config.LogConfig{Level: "bogus"})
	assert.Equal(t, zapcore.InfoLevel, level.Level())
}

func TestObserverSet_FansOut(t *testing.T) {
	a, b := mocks.NewMockObserver(), mocks.NewMockObserver()
	set := observerSet{a, b}

	set.BlockTransferred("audio_in", vstream.DirectionIn)
	set.Xrun("audio_out", vstream.DirectionOut)
	set.EndOfStream("audio_in")
	set.StartFailed("video_out")
	set.ActiveChanged("audio_in", true)
	set.BlocksOwned("audio_in", 2)

	for _, m := range []*mocks.MockObserver{a, b} {
		assert.Len(t, m.Events(), 6)
		assert.Equal(t, 1, m.Count("xrun"))
	}
}

func TestWriteResult(t *testing.T) {
	var buf bytes.Buffer
	res := &app.Result{Session: "s", Pairs: []app.PairResult{{Pair: "audio_in->audio_out", Blocks: 3, EOS: true}}}
	require.NoError(t, writeResult(&buf, res))

	var decoded app.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, *res, decoded)
}

func TestRunSession_MaxBlocks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Buffers.AudioBlockSize = 64
	cfg.Session.MaxBlocks = 8

	res, err := runSession(testutil.TestContext(t), cfg, "cli-test", testutil.TestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "cli-test", res.Session)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, 8, res.Pairs[0].Blocks)
}
