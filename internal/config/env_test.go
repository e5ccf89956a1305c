package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFiles(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv("HOME", tmpDir)

	content := `# Test env file
DDTSCAN_TEST_KEY1=value1
DDTSCAN_TEST_KEY2="quoted value"
DDTSCAN_TEST_KEY3='single quoted'
`
	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	for _, k := range []string{"DDTSCAN_TEST_KEY1", "DDTSCAN_TEST_KEY2", "DDTSCAN_TEST_KEY3"} {
		os.Unsetenv(k)
		defer os.Unsetenv(k)
	}

	if err := LoadEnvFiles(); err != nil {
		t.Fatalf("LoadEnvFiles failed: %v", err)
	}

	if os.Getenv("DDTSCAN_TEST_KEY1") != "value1" {
		t.Errorf("KEY1 not set correctly: %s", os.Getenv("DDTSCAN_TEST_KEY1"))
	}
	if os.Getenv("DDTSCAN_TEST_KEY2") != "quoted value" {
		t.Errorf("KEY2 not set correctly: %s", os.Getenv("DDTSCAN_TEST_KEY2"))
	}
	if os.Getenv("DDTSCAN_TEST_KEY3") != "single quoted" {
		t.Errorf("KEY3 not set correctly: %s", os.Getenv("DDTSCAN_TEST_KEY3"))
	}
}

func TestLoadEnvFiles_DoesNotOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv("HOME", tmpDir)

	if err := os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("DDTSCAN_EXISTING=new_value"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DDTSCAN_EXISTING", "original_value")

	if err := LoadEnvFiles(); err != nil {
		t.Fatalf("LoadEnvFiles failed: %v", err)
	}

	if os.Getenv("DDTSCAN_EXISTING") != "original_value" {
		t.Error("LoadEnvFiles should not override existing env vars")
	}
}

func TestLoadEnvFiles_NoFiles(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)
	t.Setenv("HOME", tmpDir)

	if err := LoadEnvFiles(); err != nil {
		t.Errorf("expected no error without env files, got %v", err)
	}
}

func TestResolveEnvWithAliases(t *testing.T) {
	t.Setenv("DDTSCAN_ARCHIVE_S3_ACCESS_KEY", "")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAEXAMPLE")

	if got := ResolveEnvWithAliases("DDTSCAN_ARCHIVE_S3_ACCESS_KEY"); got != "AKIAEXAMPLE" {
		t.Errorf("expected alias value, got %q", got)
	}

	t.Setenv("DDTSCAN_ARCHIVE_S3_ACCESS_KEY", "canonical")
	if got := ResolveEnvWithAliases("DDTSCAN_ARCHIVE_S3_ACCESS_KEY"); got != "canonical" {
		t.Errorf("expected canonical value, got %q", got)
	}
}

func TestGetRequiredEnv(t *testing.T) {
	t.Setenv("DDTSCAN_REQUIRED", "")

	_, err := GetRequiredEnv("DDTSCAN_REQUIRED")
	if err == nil {
		t.Fatal("expected error for missing variable")
	}
	if _, ok := err.(*MissingEnvError); !ok {
		t.Errorf("expected MissingEnvError, got %T", err)
	}

	t.Setenv("DDTSCAN_REQUIRED", "set")
	val, err := GetRequiredEnv("DDTSCAN_REQUIRED")
	if err != nil || val != "set" {
		t.Errorf("expected set value, got %q, %v", val, err)
	}
}
