package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestProductionModeIsSilent(t *testing.T) {
	require.NoError(t, Initialize(Config{DebugMode: false}))
	t.Cleanup(CloseAll)

	assert.False(t, IsDebugMode())
	assert.False(t, IsCategoryEnabled(CategorySandbox))

	// Must not panic on a no-op logger.
	Sandbox("activated generation %d", 1)
	Get(CategoryBridge).Error("dropped %s", "message")
}

func TestSetBaseRoutesCategories(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetBase(zap.New(core))
	t.Cleanup(func() { SetBase(nil) })

	Sandbox("activated generation %d", 3)
	RouterDebug("fragment %q -> %s", "html", "index.html")
	Get(CategoryBridge).Warn("stale message from generation %d", 2)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "sandbox", entries[0].LoggerName)
	assert.Equal(t, "activated generation 3", entries[0].Message)
	assert.Equal(t, "router", entries[1].LoggerName)
	assert.Equal(t, zap.DebugLevel, entries[1].Level)
	assert.Equal(t, "bridge", entries[2].LoggerName)
	assert.Equal(t, zap.WarnLevel, entries[2].Level)
}

func TestCategoryToggles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(Config{
		DebugMode:  true,
		Level:      "debug",
		Format:     "json",
		Dir:        dir,
		Categories: map[string]bool{"router": false},
	}))
	t.Cleanup(func() { _ = Initialize(Config{}) })

	assert.True(t, IsCategoryEnabled(CategorySandbox))
	assert.False(t, IsCategoryEnabled(CategoryRouter))

	Sandbox("sandbox line")
	Router("router line")
	CloseAll()

	files, err := filepath.Glob(filepath.Join(dir, "*_fiesta.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "sandbox line")
	assert.NotContains(t, content, "router line")
}

func TestTimerThreshold(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetBase(zap.New(core))
	t.Cleanup(func() { SetBase(nil) })

	timer := StartTimer(CategoryPreview, "compose")
	time.Sleep(2 * time.Millisecond)
	elapsed := timer.StopWithThreshold(time.Nanosecond)

	assert.Greater(t, elapsed, time.Duration(0))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	assert.True(t, strings.HasPrefix(entry.Message, "compose took"))
}

func TestConvenienceHelpers(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	SetBase(zap.New(core))
	t.Cleanup(func() { SetBase(nil) })

	tests := []struct {
		log      func(string, ...interface{})
		category Category
		level    zapcore.Level
	}{
		{Boot, CategoryBoot, zap.InfoLevel},
		{BootWarn, CategoryBoot, zap.WarnLevel},
		{Workspace, CategoryWorkspace, zap.InfoLevel},
		{Preview, CategoryPreview, zap.InfoLevel},
		{PreviewDebug, CategoryPreview, zap.DebugLevel},
		{Bridge, CategoryBridge, zap.InfoLevel},
		{Assist, CategoryAssist, zap.InfoLevel},
		{StudioDebug, CategoryStudio, zap.DebugLevel},
	}
	for _, tt := range tests {
		tt.log("line %d", 1)
	}

	entries := logs.All()
	require.Len(t, entries, len(tests))
	for i, tt := range tests {
		assert.Equal(t, string(tt.category), entries[i].LoggerName)
		assert.Equal(t, tt.level, entries[i].Level)
		assert.Equal(t, "line 1", entries[i].Message)
	}
	assert.True(t, IsDebugMode())
}
