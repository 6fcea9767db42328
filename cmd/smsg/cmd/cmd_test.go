package cmd

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/structmsg/pkg/api"
	"github.com/ssargent/structmsg/pkg/client"
	"github.com/ssargent/structmsg/pkg/config"
	"github.com/ssargent/structmsg/pkg/di"
	"github.com/ssargent/structmsg/pkg/storage"
	"github.com/ssargent/structmsg/pkg/structmsg"
)

// execute runs the root command with fresh flag values
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// writeConfig saves a config to a temporary file and returns its path
func writeConfig(t *testing.T, modify func(*config.Config)) string {
	t.Helper()
	c := config.DefaultConfig()
	c.DataDir = filepath.Join(t.TempDir(), "data")
	c.Message.MaxSegmentLength = 1024
	c.Retry.InitialBackoff = 0
	if modify != nil {
		modify(c)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, config.SaveConfig(c, path))
	return path
}

func writeRandomFile(t *testing.T, size int) (string, []byte) {
	t.Helper()
	content := make([]byte, size)
	_, err := rand.Read(content)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "content.bin")
	require.NoError(t, os.WriteFile(path, content, 0600))
	return path, content
}

func TestEncodeInspectDecode(t *testing.T) {
	configPath := writeConfig(t, nil)
	in, content := writeRandomFile(t, 2560)
	dir := t.TempDir()
	encoded := filepath.Join(dir, "content.xsm")
	decoded := filepath.Join(dir, "content.out")

	out, err := execute(t, "encode", in, encoded, "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Encoded 2560 bytes into 2635 bytes (3 segments, crc64)")

	stat, err := os.Stat(encoded)
	require.NoError(t, err)
	assert.Equal(t, structmsg.EncodedLength(2560, 1024, structmsg.FlagCrc64), stat.Size())

	out, err = execute(t, "inspect", encoded, "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Segments:       3")
	assert.Contains(t, out, "Content length: 2560")
	assert.Contains(t, out, "Stream CRC64:")
	assert.Regexp(t, `(?m)^\s*1\s+13\s+1024\s+1047\s*$`, out)
	assert.Regexp(t, `(?m)^\s*3\s+2097\s+512\s+2619\s*$`, out)

	out, err = execute(t, "decode", encoded, decoded, "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Decoded 2560 bytes")

	got, err := os.ReadFile(decoded)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestEncode_Flags(t *testing.T) {
	configPath := writeConfig(t, nil)
	in, _ := writeRandomFile(t, 5000)
	encoded := filepath.Join(t.TempDir(), "content.xsm")

	out, err := execute(t, "encode", in, encoded, "--config", configPath, "--segment-length", "4096", "--crc64=false")
	require.NoError(t, err)
	assert.Contains(t, out, "(2 segments, none)")

	stat, err := os.Stat(encoded)
	require.NoError(t, err)
	assert.Equal(t, structmsg.EncodedLength(5000, 4096, structmsg.FlagNone), stat.Size())

	out, err = execute(t, "inspect", encoded, "--config", configPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "Stream CRC64:")
	assert.Regexp(t, `(?m)^\s*2\s+4119\s+904\s+-\s*$`, out)

	_, err = execute(t, "encode", in, encoded, "--config", configPath, "--segment-length=-5")
	assert.ErrorIs(t, err, structmsg.ErrInvalidSegmentLength)
}

func TestDecode_Corrupt(t *testing.T) {
	configPath := writeConfig(t, nil)
	in, _ := writeRandomFile(t, 3000)
	dir := t.TempDir()
	encoded := filepath.Join(dir, "content.xsm")
	decoded := filepath.Join(dir, "content.out")

	_, err := execute(t, "encode", in, encoded, "--config", configPath)
	require.NoError(t, err)

	data, err := os.ReadFile(encoded)
	require.NoError(t, err)
	data[structmsg.StreamHeaderLength+structmsg.SegmentHeaderLength+100] ^= 0x01
	require.NoError(t, os.WriteFile(encoded, data, 0600))

	_, err = execute(t, "decode", encoded, decoded, "--config", configPath)
	assert.ErrorIs(t, err, structmsg.ErrChecksumMismatch)
	assert.NoFileExists(t, decoded)

	out, err := execute(t, "inspect", encoded, "--config", configPath)
	assert.ErrorIs(t, err, structmsg.ErrChecksumMismatch)
	assert.Contains(t, out, "Segments:       3")
}

func TestDecode_NotAMessage(t *testing.T) {
	configPath := writeConfig(t, nil)
	short := filepath.Join(t.TempDir(), "short.xsm")
	require.NoError(t, os.WriteFile(short, []byte{1, 2, 3}, 0600))

	_, err := execute(t, "decode", short, filepath.Join(t.TempDir(), "out"), "--config", configPath)
	assert.ErrorIs(t, err, structmsg.ErrMalformedMessage)

	_, err = execute(t, "decode", filepath.Join(t.TempDir(), "missing"), "out", "--config", configPath)
	assert.Error(t, err)
}

func TestRoot_ConfigErrors(t *testing.T) {
	in, _ := writeRandomFile(t, 10)
	out := filepath.Join(t.TempDir(), "out")

	_, err := execute(t, "encode", in, out, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	invalid := writeConfig(t, func(c *config.Config) { c.Retry.MaxRetryRequests = 0 })
	_, err = execute(t, "encode", in, out, "--config", invalid)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = execute(t, "encode", in, out, "--config", writeConfig(t, nil), "--log-level", "loud")
	assert.Error(t, err)
}

type recordingStarter struct {
	config api.ServerConfig
	calls  int
}

func (s *recordingStarter) CreateServerStarter() api.ServerStarter { return s }

func (s *recordingStarter) StartServer(ctx context.Context, store api.IBlobStore, config api.ServerConfig, logger zerolog.Logger) error {
	s.calls++
	s.config = config
	_, err := store.List()
	return err
}

func withRecordingStarter(t *testing.T) *recordingStarter {
	t.Helper()
	starter := &recordingStarter{}
	c := di.NewContainer()
	c.SetServerFactory(starter)
	SetContainer(c)
	t.Cleanup(func() { SetContainer(nil) })
	return starter
}

func TestServe(t *testing.T) {
	starter := withRecordingStarter(t)
	configPath := writeConfig(t, nil)
	dataDir := filepath.Join(t.TempDir(), "blobs")

	out, err := execute(t, "serve", "--config", configPath, "--port", "9191", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Equal(t, 1, starter.calls)
	assert.Equal(t, 9191, starter.config.Port)
	assert.Equal(t, "127.0.0.1", starter.config.Bind)
	assert.Equal(t, int64(1024), starter.config.MaxSegmentLength)
	assert.Len(t, starter.config.APIKey, 64)
	assert.Contains(t, out, "Generated API key for this run: "+starter.config.APIKey)
	assert.DirExists(t, dataDir)

	_, err = execute(t, "serve", "--config", configPath, "--data-dir", dataDir, "--api-key", "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", starter.config.APIKey)
	assert.Equal(t, 8080, starter.config.Port)
}

func TestServe_WithoutContainer(t *testing.T) {
	SetContainer(nil)
	_, err := execute(t, "serve", "--config", writeConfig(t, nil), "--api-key", "k")
	assert.ErrorContains(t, err, "dependency container not initialized")
}

func TestUp_Bootstraps(t *testing.T) {
	starter := withRecordingStarter(t)
	configPath := filepath.Join(t.TempDir(), "smsg", "config.yaml")
	dataDir := filepath.Join(t.TempDir(), "blobs")

	out, err := execute(t, "up", "--config", configPath, "--data-dir", dataDir, "--print-keys")
	require.NoError(t, err)
	assert.Contains(t, out, "First run detected")
	require.True(t, config.ConfigExists(configPath))

	saved, err := config.LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, dataDir, saved.DataDir)
	assert.Equal(t, saved.Security.APIKey, starter.config.APIKey)
	assert.Contains(t, out, "API Key: "+saved.Security.APIKey)

	// Second run reuses the saved config
	out, err = execute(t, "up", "--config", configPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "First run detected")
	assert.Equal(t, saved.Security.APIKey, starter.config.APIKey)
	assert.Equal(t, 2, starter.calls)
}

func TestPutGetListDelete(t *testing.T) {
	store, err := storage.NewBlobStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	registry := prometheus.NewRegistry()
	server := api.NewServer(store, api.ServerConfig{APIKey: "cli-key", MaxSegmentLength: 1024}, api.NewMetrics(registry), zerolog.Nop())
	ts := httptest.NewServer(server.Router(registry))
	defer ts.Close()

	configPath := writeConfig(t, func(c *config.Config) {
		c.Server = ts.URL
		c.Security.APIKey = "cli-key"
	})
	in, content := writeRandomFile(t, 4000)

	out, err := execute(t, "put", in, "--config", configPath)
	require.NoError(t, err)
	match := regexp.MustCompile(`as (\S+) \(4000 bytes`).FindStringSubmatch(out)
	require.Len(t, match, 2, out)
	id := match[1]

	stored, _, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, content, stored)

	downloaded := filepath.Join(t.TempDir(), "downloaded.bin")
	out, err = execute(t, "get", id, downloaded, "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "(4000 bytes)")
	got, err := os.ReadFile(downloaded)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	out, err = execute(t, "list", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, id)

	_, err = execute(t, "list", "--config", configPath, "--api-key", "wrong")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)

	_, err = execute(t, "delete", id, "--config", configPath)
	require.NoError(t, err)

	_, err = execute(t, "get", id, downloaded, "--config", configPath)
	assert.ErrorIs(t, err, client.ErrNotFound)
}
