package filtergraph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filterNames(s Spec) []string {
	names := make([]string, 0, len(s.Filters))
	for _, f := range s.Filters {
		names = append(names, f.Name)
	}
	return names
}

func TestBuild_CanonicalOrdering(t *testing.T) {
	tests := []struct {
		purpose Purpose
		want    []string
	}{
		{
			purpose: NoiseReduction,
			want:    []string{"highpass", "lowpass", "afftdn", "compand"},
		},
		{
			purpose: VocalEnhancement,
			want:    []string{"highpass", "lowpass", "afftdn", "equalizer", "compand", "loudnorm"},
		},
		{
			purpose: SilenceRemoval,
			want:    []string{"silenceremove", "silenceremove"},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.purpose), func(t *testing.T) {
			spec, err := Build(tt.purpose, Default())
			require.NoError(t, err)
			assert.Equal(t, tt.purpose, spec.Purpose)
			assert.Equal(t, tt.want, filterNames(spec))
		})
	}
}

func TestBuild_UnknownPurpose(t *testing.T) {
	_, err := Build(Purpose("reverb"), Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown filter graph purpose")
}

func TestBuild_Deterministic(t *testing.T) {
	p := Params{HighpassHz: 100, NoiseReduceDB: 20}

	for _, purpose := range []Purpose{NoiseReduction, VocalEnhancement, SilenceRemoval} {
		a, err := Build(purpose, p)
		require.NoError(t, err)
		b, err := Build(purpose, p)
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.Equal(t, a.Serialize(), b.Serialize())
	}
}

func TestSerialize_NoiseReduction(t *testing.T) {
	spec, err := Build(NoiseReduction, Default())
	require.NoError(t, err)

	want := "highpass=f=80," +
		"lowpass=f=12000," +
		"afftdn=nr=12:nf=-25," +
		"compand=attacks=0.02:decays=0.3:points=-80/-80|-45/-35|-27/-25|0/-7:soft-knee=6"
	assert.Equal(t, want, spec.Serialize())
}

func TestSerialize_VocalEnhancement(t *testing.T) {
	spec, err := Build(VocalEnhancement, Default())
	require.NoError(t, err)

	serialized := spec.Serialize()
	assert.Contains(t, serialized, "equalizer=f=3000:t=h:width=1000:g=2")
	assert.Contains(t, serialized, "loudnorm=I=-16:TP=-1.5:LRA=11")

	// Dynamics must come after the frequency-domain filters and before
	// loudness normalization.
	idxDenoise := indexOf(t, serialized, "afftdn")
	idxCompand := indexOf(t, serialized, "compand")
	idxLoudnorm := indexOf(t, serialized, "loudnorm")
	assert.Less(t, idxDenoise, idxCompand)
	assert.Less(t, idxCompand, idxLoudnorm)
}

func TestSerialize_SilenceRemoval(t *testing.T) {
	spec, err := Build(SilenceRemoval, Params{SilenceThresholdDB: -40, SilenceMinDuration: 0.5})
	require.NoError(t, err)

	want := "silenceremove=start_periods=1:start_duration=0.5:start_threshold=-40dB," +
		"silenceremove=stop_periods=1:stop_duration=0.5:stop_threshold=-40dB"
	assert.Equal(t, want, spec.Serialize())
}

func TestBuild_ZeroParamsGetDefaults(t *testing.T) {
	spec, err := Build(NoiseReduction, Params{})
	require.NoError(t, err)

	full, err := Build(NoiseReduction, Default())
	require.NoError(t, err)

	assert.Equal(t, full.Serialize(), spec.Serialize())
}

func TestBuild_CustomParamsOverrideDefaults(t *testing.T) {
	spec, err := Build(NoiseReduction, Params{HighpassHz: 120})
	require.NoError(t, err)

	assert.Contains(t, spec.Serialize(), "highpass=f=120")
	// Unset params still default.
	assert.Contains(t, spec.Serialize(), "lowpass=f=12000")
}

func indexOf(t *testing.T, s, sub string) int {
	t.Helper()
	idx := strings.Index(s, sub)
	require.GreaterOrEqual(t, idx, 0, "missing %q in %q", sub, s)
	return idx
}
