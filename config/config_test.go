package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rufs-project/rufs/common"
	"github.com/rufs-project/rufs/super"
)

func TestLoadWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "rufs.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, super.DefaultGeometry(), cfg.Geometry())

	_, err = os.Stat(path)
	require.NoError(t, err, "default config is written")

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rufs.yaml")
	data := []byte("disk:\n  path: /tmp/x.img\n  block_size: 1024\nlog:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.img", cfg.Disk.Path)
	assert.Equal(t, uint64(1024), cfg.Disk.BlockSize)
	assert.Equal(t, common.DEFAULTNINODE, cfg.Disk.MaxInodes, "unset keys keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "rufs", cfg.MCP.Name)
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("disk:\n  block_size: 1000\n"), 0644))
	_, err := Load(bad)
	assert.ErrorIs(t, err, common.ErrInvalid)

	garbled := filepath.Join(dir, "garbled.yaml")
	require.NoError(t, os.WriteFile(garbled, []byte("disk: [1, 2"), 0644))
	_, err = Load(garbled)
	assert.ErrorIs(t, err, common.ErrInvalid)

	cfg := Default()
	cfg.Disk.Path = ""
	assert.ErrorIs(t, cfg.Validate(), common.ErrInvalid)
}
