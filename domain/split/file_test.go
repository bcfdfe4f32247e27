package split

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/soocke/score-split-go/domain/match"
	"github.com/soocke/score-split-go/domain/region"
)

func TestFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.ssplt")

	src := newTestManager(t, &fakeRecognizer{})
	require.NoError(t, src.SetThreshold(0.9))
	src.AddSplit([]byte{1, 2, 3}, region.Rectangle{X: 1, Y: 2, Width: 3, Height: 4})
	src.AddSplit([]byte{4, 5}, region.Rectangle{X: 5, Y: 6, Width: 7, Height: 8})
	require.NoError(t, src.Save(path))

	dst, err := NewManager(&fakeRecognizer{}, Options{Method: match.CCoeffNormed})
	require.NoError(t, err)
	require.NoError(t, dst.Open(path))

	require.Equal(t, src.Splits(), dst.Splits())
	require.InDelta(t, 0.9, dst.Threshold(), 1e-12)
	require.Equal(t, match.CCorrNormed, dst.Method())
	require.Equal(t, 0, dst.Index())
}

func TestFile_MethodIsText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.ssplt")
	f := NewFile(0.95, match.CCoeffNormed)
	f.Add([]byte{7}, region.Rectangle{Width: 1, Height: 1})
	require.NoError(t, f.Save(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"method": "ccoeff_normed"`)
	require.Contains(t, string(raw), `"trigger_image": "Bw=="`)

	got, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, match.CCoeffNormed, got.Method)
}

func TestLoadFile_Rejects(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"version":   `{"version":2,"splits":[]}`,
		"threshold": `{"version":1,"threshold":3,"splits":[]}`,
		"rectangle": `{"version":1,"splits":[{"trigger_image":"AQ==","score_location":{"x":0,"y":0,"width":0,"height":1}}]}`,
		"trigger":   `{"version":1,"splits":[{"trigger_image":"","score_location":{"x":0,"y":0,"width":1,"height":1}}]}`,
		"syntax":    `{"version":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".ssplt")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadFile(path)
			require.Error(t, err)
		})
	}
}
