package configutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Token   string            `json:"token"`
	Port    int               `json:"port"`
	Debug   bool              `json:"debug"`
	Proxy   any               `json:"proxy"`
	Headers map[string]string `json:"headers"`
}

func writeFile(t *testing.T, path, contents string) {
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.json5"), `{
		// comments and trailing commas are allowed
		token: "default",
		port: 8089,
		proxy: {host: "127.0.0.1", port: 8080},
		headers: {a: "1"},
	}`)
	writeFile(t, filepath.Join(dir, "app.local.json5"), `{token: "secret", debug: true}`)

	config, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, "secret", config.Token)
	require.Equal(t, 8089, config.Port)
	require.True(t, config.Debug)
	require.Equal(t, map[string]string{"a": "1"}, config.Headers)

	proxy, ok := config.Proxy.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "127.0.0.1", proxy["host"])
}

func TestReadConfigOnlyLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.local.json5"), `{port: 1}`)

	config, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 1, config.Port)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "app.json5"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "app.json5"), `{port: }`)

	_, err := ReadConfig[testConfig](filepath.Join(dir, "app.json5"))
	require.Error(t, err)
	require.False(t, errors.Is(err, os.ErrNotExist))
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, "conf/notion-helper.local.json5", LocalPath("conf/notion-helper.json5"))
	require.Equal(t, "telemetry.local", LocalPath("telemetry"))
}

func TestReadRecursively(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	err := os.MkdirAll(nested, 0777)
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, "found.json5"), `{port: 42}`)

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)
	err = os.Chdir(nested)
	if err != nil {
		t.Fatal(err)
	}

	config, err := ReadRecursively[testConfig]("found.json5")
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, 42, config.Port)

	_, err = ReadRecursively[testConfig]("definitely-not-here.json5")
	require.True(t, errors.Is(err, os.ErrNotExist))
}
