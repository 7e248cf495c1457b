package audio

import (
	"encoding/binary"
	"math"
)

// ActivityConfig holds the thresholds used to track speech activity on the
// frames sent to the recognizer
type ActivityConfig struct {
	EnergyThreshold float64 // RMS level above which a frame counts as speech
	SilenceFrames   int     // Consecutive quiet frames that end an utterance
}

// DefaultActivityConfig returns thresholds tuned for 16 kHz LINEAR16 input
func DefaultActivityConfig() ActivityConfig {
	return ActivityConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10,
	}
}

// Activity is the outcome of observing one frame
type Activity struct {
	Level    float64 // RMS of the frame
	Speaking bool
	Started  bool // speech began on this frame
	Ended    bool // speech ended on this frame
}

// ActivityDetector is an energy based speech detector. It is not safe for
// concurrent use; each recognition session owns one.
type ActivityDetector struct {
	config         ActivityConfig
	silenceCounter int
	speaking       bool
}

// NewActivityDetector creates a detector, falling back to the defaults for
// unset thresholds
func NewActivityDetector(config ActivityConfig) *ActivityDetector {
	defaults := DefaultActivityConfig()
	if config.EnergyThreshold <= 0 {
		config.EnergyThreshold = defaults.EnergyThreshold
	}
	if config.SilenceFrames <= 0 {
		config.SilenceFrames = defaults.SilenceFrames
	}
	return &ActivityDetector{config: config}
}

// Observe measures a LINEAR16 little-endian frame and updates the speech state
func (d *ActivityDetector) Observe(frame []byte) Activity {
	level := CalculateRMS(DecodePCM16(frame))
	a := Activity{Level: level}

	if level > d.config.EnergyThreshold {
		d.silenceCounter = 0
		if !d.speaking {
			a.Started = true
			d.speaking = true
		}
	} else {
		d.silenceCounter++
		if d.speaking && d.silenceCounter >= d.config.SilenceFrames {
			a.Ended = true
			d.speaking = false
			d.silenceCounter = 0
		}
	}

	a.Speaking = d.speaking
	return a
}

// Reset clears the speech state
func (d *ActivityDetector) Reset() {
	d.silenceCounter = 0
	d.speaking = false
}

// Speaking reports whether the last observed frames contained speech
func (d *ActivityDetector) Speaking() bool {
	return d.speaking
}

// DecodePCM16 converts little-endian 16-bit PCM to samples. A trailing odd
// byte is ignored.
func DecodePCM16(frame []byte) []int16 {
	samples := make([]int16, len(frame)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(frame[2*i:]))
	}
	return samples
}

// CalculateRMS calculates the root mean square of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
