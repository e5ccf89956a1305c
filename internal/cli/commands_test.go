package cli

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/config"
	"github.com/gmsas95/ddtscan/internal/domain"
	"github.com/gmsas95/ddtscan/internal/geometry"
	"github.com/gmsas95/ddtscan/internal/imageio"
)

func TestEnabledStatus(t *testing.T) {
	assert.Equal(t, "✅ enabled", enabledStatus(true))
	assert.Equal(t, "❌ disabled", enabledStatus(false))
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"1234567890", "1234...7890"},
		{"1234567890abcdef", "1234...cdef"},
		{"short", "***"},
		{"", "***"},
		{"12345678", "***"},
		{"sk-1234567890abcdef", "sk-1...cdef"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, maskToken(tt.token), "maskToken(%q)", tt.token)
	}
}

func TestPrintConfigValue(t *testing.T) {
	cfg := config.Default(t.TempDir())
	assert.True(t, printConfigValue(cfg, "server.port"))
	assert.True(t, printConfigValue(cfg, "filter.enabled"))
	assert.False(t, printConfigValue(cfg, "llm.provider"))
}

func TestRenderConfigMasksSecrets(t *testing.T) {
	cfg := config.Default(t.TempDir())
	cfg.Security.JWTSecret = "super-secret-signing-key-0123456789"
	cfg.Archive.S3.SecretKey = "wJalrXUtnFEMI/K7MDENG"

	out, err := renderConfig(cfg)
	require.NoError(t, err)

	assert.NotContains(t, out, "super-secret-signing-key")
	assert.NotContains(t, out, "wJalrXUtnFEMI")
	assert.Contains(t, out, "supe...6789")
	assert.Contains(t, out, "threshold_block: 31")
	assert.Equal(t, "super-secret-signing-key-0123456789", cfg.Security.JWTSecret, "original must be untouched")
}

func TestRunDoctor(t *testing.T) {
	assert.Equal(t, 0, runDoctor(Options{DataDir: t.TempDir()}))
}

func TestRunDoctorFlagsShortSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("security:\n  auth_required: true\n  jwt_secret: too-short\n"), 0644))

	assert.Equal(t, 1, runDoctor(Options{ConfigPath: path, DataDir: dir}))
}

func TestParseCorners(t *testing.T) {
	points, err := parseCorners("50,50, 250,50,250,333,50,333")
	require.NoError(t, err)
	assert.Equal(t, []geometry.Point{{X: 50, Y: 50}, {X: 250, Y: 50}, {X: 250, Y: 333}, {X: 50, Y: 333}}, points)

	points, err = parseCorners("")
	require.NoError(t, err)
	assert.Nil(t, points)

	_, err = parseCorners("1,2,3")
	assert.Error(t, err)

	_, err = parseCorners("1,2,3,4,5,6,7,x")
	assert.Error(t, err)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, domain.FormatJPEG, formatFor("page.JPG"))
	assert.Equal(t, domain.FormatJPEG, formatFor("out/page.jpeg"))
	assert.Equal(t, domain.FormatPNG, formatFor("page.png"))
	assert.Equal(t, domain.FormatPNG, formatFor("page"))
}

// writePhoto saves a gray desk with a white 200x283 sheet at (50,50).
func writePhoto(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 300, 400))
	for y := 0; y < 400; y++ {
		for x := 0; x < 300; x++ {
			c := color.NRGBA{90, 90, 90, 255}
			if x >= 50 && x < 250 && y >= 50 && y < 333 {
				c = color.NRGBA{245, 245, 245, 255}
				if y >= 100 && y < 106 && x >= 80 && x < 220 {
					c = color.NRGBA{20, 20, 20, 255}
				}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func signatureFile(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 120, 40))
	for x := 10; x < 110; x++ {
		img.SetNRGBA(x, 20, color.NRGBA{0, 0, 0, 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

func TestRunScan(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)
	input := filepath.Join(dir, "photo.png")
	writePhoto(t, input)

	tests := []struct {
		name   string
		output string
		format string
	}{
		{"png output", "page.png", "png"},
		{"jpeg output", "page.jpg", "jpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := filepath.Join(dir, tt.output)
			out, err := runScan(t.Context(), cfg, scanOptions{
				Input:   input,
				Output:  output,
				Corners: []geometry.Point{{X: 250, Y: 333}, {X: 50, Y: 50}, {X: 50, Y: 333}, {X: 250, Y: 50}},
			}, zap.NewNop())
			require.NoError(t, err)
			assert.Equal(t, 200, out.Page.Width)
			assert.Equal(t, 283, out.Page.Height)

			data, err := os.ReadFile(output)
			require.NoError(t, err)
			size, format, err := imageio.Bounds(data, geometry.DefaultLimits())
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, 200, size.Width)
		})
	}
}

func TestRunScanMissingInput(t *testing.T) {
	dir := t.TempDir()
	_, err := runScan(t.Context(), config.Default(dir), scanOptions{
		Input:  filepath.Join(dir, "missing.png"),
		Output: filepath.Join(dir, "out.png"),
	}, zap.NewNop())
	assert.Error(t, err)
}

func TestRunSign(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)
	photo := filepath.Join(dir, "photo.png")
	writePhoto(t, photo)

	var pages []string
	for _, name := range []string{"p1.png", "p2.jpg"} {
		out := filepath.Join(dir, name)
		_, err := runScan(t.Context(), cfg, scanOptions{
			Input:   photo,
			Output:  out,
			Corners: []geometry.Point{{X: 50, Y: 50}, {X: 250, Y: 50}, {X: 250, Y: 333}, {X: 50, Y: 333}},
		}, zap.NewNop())
		require.NoError(t, err)
		pages = append(pages, out)
	}

	sig := filepath.Join(dir, "sig.png")
	signatureFile(t, sig)

	output := filepath.Join(dir, "ddt.pdf")
	previewPath := filepath.Join(dir, "preview.png")
	res, err := runSign(t.Context(), cfg, signOptions{
		Pages:     pages,
		Output:    output,
		Preview:   previewPath,
		Signature: sig,
		Spec:      domain.StampSpec{SealNumber: "A-1", CarrierName: "Rossi"},
		Workflow:  domain.WorkflowSign,
	}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Pages)
	assert.True(t, res.Report.SignatureApplied)
	assert.True(t, res.Report.TextApplied)

	pdf, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(pdf[:5]))
	assert.Contains(t, string(pdf), "/Count 2")

	pv, err := os.ReadFile(previewPath)
	require.NoError(t, err)
	_, format, err := imageio.Bounds(pv, geometry.DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestRunSignRequiresSignature(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default(dir)
	page := filepath.Join(dir, "page.png")
	writePhoto(t, page)

	_, err := runSign(t.Context(), cfg, signOptions{
		Pages:    []string{page},
		Output:   filepath.Join(dir, "out.pdf"),
		Spec:     domain.StampSpec{SealNumber: "A-1"},
		Workflow: domain.WorkflowSign,
	}, zap.NewNop())
	require.Error(t, err)

	res, err := runSign(t.Context(), cfg, signOptions{
		Pages:    []string{page},
		Output:   filepath.Join(dir, "out.pdf"),
		Spec:     domain.StampSpec{SealNumber: "A-1"},
		Workflow: domain.WorkflowRestamp,
	}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, res.Report.SignatureApplied)
	assert.True(t, res.Report.TextApplied)
}

func TestReadSignatureDataURL(t *testing.T) {
	data, err := readSignature(domain.EncodeSignature([]byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, err = readSignature(filepath.Join(t.TempDir(), "none.png"))
	assert.Error(t, err)
}

func TestPrintFunctions(t *testing.T) {
	PrintExtendedHelp()
	PrintConfigHelp()
	PrintScanHelp()
	PrintSignHelp()
	PrintBatchHelp()
}

func TestRunSignRejectsControlCharacters(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "page.png")
	writePhoto(t, page)

	_, err := runSign(t.Context(), config.Default(dir), signOptions{
		Pages:    []string{page},
		Output:   filepath.Join(dir, "out.pdf"),
		Spec:     domain.StampSpec{SealNumber: "A-1\x00"},
		Workflow: domain.WorkflowRestamp,
	}, zap.NewNop())
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "out.pdf"))
}

// rotatedJPEG encodes a w x h JPEG tagged with EXIF orientation 6, which
// viewers display rotated 90 degrees clockwise.
func rotatedJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	raw := buf.Bytes()

	exif := []byte("Exif\x00\x00")
	exif = append(exif, 'M', 'M', 0x00, 0x2A, 0x00, 0x00, 0x00, 0x08)
	exif = append(exif, 0x00, 0x01)
	exif = append(exif, 0x01, 0x12, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01, 0x00, 0x06, 0x00, 0x00)
	exif = append(exif, 0x00, 0x00, 0x00, 0x00)
	n := len(exif) + 2

	out := append([]byte{}, raw[:2]...)
	out = append(out, 0xFF, 0xE1, byte(n>>8), byte(n))
	out = append(out, exif...)
	return append(out, raw[2:]...)
}

func TestLoadPageAppliesOrientation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.jpg")
	require.NoError(t, os.WriteFile(path, rotatedJPEG(t, 60, 30), 0o644))

	cfg := config.Default(dir)
	page, err := loadPage(path, cfg.Stamp, geometry.DefaultLimits())
	require.NoError(t, err)

	assert.Equal(t, domain.FormatJPEG, page.Format)
	assert.Equal(t, 30, page.Width)
	assert.Equal(t, 60, page.Height)

	img, err := imageio.Decode(page.Data, geometry.DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 30, 60), img.Bounds())
}
