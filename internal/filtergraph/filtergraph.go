// Package filtergraph builds the ordered audio filter chains the pipeline
// hands to the transcoding engine. Building and serializing a graph is pure
// data transformation; nothing here touches files or processes.
package filtergraph

import (
	"fmt"
	"strconv"
	"strings"
)

// Purpose names a pipeline stage with a fixed canonical filter ordering.
type Purpose string

const (
	NoiseReduction   Purpose = "noise_reduction"
	VocalEnhancement Purpose = "vocal_enhancement"
	SilenceRemoval   Purpose = "silence_removal"
)

// Params are the tunable knobs shared by all purposes. Zero values are
// replaced by Default() in Build so a partially filled struct stays usable.
type Params struct {
	HighpassHz    int
	LowpassHz     int
	NoiseReduceDB float64
	NoiseFloorDB  float64

	ClarityHz      int
	ClarityWidthHz int
	ClarityGainDB  float64

	LoudnessTargetLUFS float64
	LoudnessTruePeak   float64
	LoudnessRange      float64

	SilenceThresholdDB float64
	SilenceMinDuration float64
}

// Default returns the parameter set tuned for spoken-voice sources.
func Default() Params {
	return Params{
		HighpassHz:         80,
		LowpassHz:          12000,
		NoiseReduceDB:      12,
		NoiseFloorDB:       -25,
		ClarityHz:          3000,
		ClarityWidthHz:     1000,
		ClarityGainDB:      2,
		LoudnessTargetLUFS: -16,
		LoudnessTruePeak:   -1.5,
		LoudnessRange:      11,
		SilenceThresholdDB: -35,
		SilenceMinDuration: 0.4,
	}
}

// Arg is a single named filter argument. Order matters for serialization.
type Arg struct {
	Key   string
	Value string
}

// Filter is one operation of the chain.
type Filter struct {
	Name string
	Args []Arg
}

// Spec is an immutable, ordered filter chain for one purpose.
type Spec struct {
	Purpose Purpose
	Filters []Filter
}

// Build returns the canonical filter chain for the given purpose.
//
// The orderings are a correctness property: frequency-domain filters must
// precede dynamics compression, which must precede loudness normalization.
// Companding before the high/low-pass filters would react to a noise floor
// that is about to be removed.
func Build(purpose Purpose, p Params) (Spec, error) {
	p = withDefaults(p)

	switch purpose {
	case NoiseReduction:
		return Spec{
			Purpose: purpose,
			Filters: []Filter{
				highpass(p),
				lowpass(p),
				denoiser(p),
				compander(),
			},
		}, nil

	case VocalEnhancement:
		return Spec{
			Purpose: purpose,
			Filters: []Filter{
				highpass(p),
				lowpass(p),
				denoiser(p),
				clarityEQ(p),
				compander(),
				loudnorm(p),
			},
		}, nil

	case SilenceRemoval:
		return Spec{
			Purpose: purpose,
			Filters: []Filter{
				leadingTrim(p),
				trailingTrim(p),
			},
		}, nil
	}

	return Spec{}, fmt.Errorf("unknown filter graph purpose: %q", purpose)
}

// Serialize renders the chain in the transcoding engine's textual filter
// syntax: filters joined by commas, arguments by colons.
func (s Spec) Serialize() string {
	parts := make([]string, 0, len(s.Filters))
	for _, f := range s.Filters {
		if len(f.Args) == 0 {
			parts = append(parts, f.Name)
			continue
		}
		args := make([]string, 0, len(f.Args))
		for _, a := range f.Args {
			args = append(args, a.Key+"="+a.Value)
		}
		parts = append(parts, f.Name+"="+strings.Join(args, ":"))
	}
	return strings.Join(parts, ",")
}

func withDefaults(p Params) Params {
	d := Default()
	if p.HighpassHz == 0 {
		p.HighpassHz = d.HighpassHz
	}
	if p.LowpassHz == 0 {
		p.LowpassHz = d.LowpassHz
	}
	if p.NoiseReduceDB == 0 {
		p.NoiseReduceDB = d.NoiseReduceDB
	}
	if p.NoiseFloorDB == 0 {
		p.NoiseFloorDB = d.NoiseFloorDB
	}
	if p.ClarityHz == 0 {
		p.ClarityHz = d.ClarityHz
	}
	if p.ClarityWidthHz == 0 {
		p.ClarityWidthHz = d.ClarityWidthHz
	}
	if p.ClarityGainDB == 0 {
		p.ClarityGainDB = d.ClarityGainDB
	}
	if p.LoudnessTargetLUFS == 0 {
		p.LoudnessTargetLUFS = d.LoudnessTargetLUFS
	}
	if p.LoudnessTruePeak == 0 {
		p.LoudnessTruePeak = d.LoudnessTruePeak
	}
	if p.LoudnessRange == 0 {
		p.LoudnessRange = d.LoudnessRange
	}
	if p.SilenceThresholdDB == 0 {
		p.SilenceThresholdDB = d.SilenceThresholdDB
	}
	if p.SilenceMinDuration == 0 {
		p.SilenceMinDuration = d.SilenceMinDuration
	}
	return p
}

func highpass(p Params) Filter {
	return Filter{Name: "highpass", Args: []Arg{{"f", itoa(p.HighpassHz)}}}
}

func lowpass(p Params) Filter {
	return Filter{Name: "lowpass", Args: []Arg{{"f", itoa(p.LowpassHz)}}}
}

func denoiser(p Params) Filter {
	return Filter{Name: "afftdn", Args: []Arg{
		{"nr", ftoa(p.NoiseReduceDB)},
		{"nf", ftoa(p.NoiseFloorDB)},
	}}
}

func clarityEQ(p Params) Filter {
	return Filter{Name: "equalizer", Args: []Arg{
		{"f", itoa(p.ClarityHz)},
		{"t", "h"},
		{"width", itoa(p.ClarityWidthHz)},
		{"g", ftoa(p.ClarityGainDB)},
	}}
}

// compander applies a fixed soft-knee transfer curve that lifts quiet speech
// without pumping. The points are expressed as in/out dB pairs.
func compander() Filter {
	return Filter{Name: "compand", Args: []Arg{
		{"attacks", "0.02"},
		{"decays", "0.3"},
		{"points", "-80/-80|-45/-35|-27/-25|0/-7"},
		{"soft-knee", "6"},
	}}
}

func loudnorm(p Params) Filter {
	return Filter{Name: "loudnorm", Args: []Arg{
		{"I", ftoa(p.LoudnessTargetLUFS)},
		{"TP", ftoa(p.LoudnessTruePeak)},
		{"LRA", ftoa(p.LoudnessRange)},
	}}
}

func leadingTrim(p Params) Filter {
	return Filter{Name: "silenceremove", Args: []Arg{
		{"start_periods", "1"},
		{"start_duration", ftoa(p.SilenceMinDuration)},
		{"start_threshold", ftoa(p.SilenceThresholdDB) + "dB"},
	}}
}

func trailingTrim(p Params) Filter {
	return Filter{Name: "silenceremove", Args: []Arg{
		{"stop_periods", "1"},
		{"stop_duration", ftoa(p.SilenceMinDuration)},
		{"stop_threshold", ftoa(p.SilenceThresholdDB) + "dB"},
	}}
}

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
