package audio

import (
	"math"
	"time"
)

type VADEvent int

const (
	VADNone VADEvent = iota
	VADSpeechStart
	VADSpeechEnd
)

const (
	// DefaultThreshold is used until the microphone has been calibrated.
	DefaultThreshold = 0.02
	minThreshold     = 0.005
	// Ambient RMS is scaled by this factor to get the speech threshold.
	calibrationFactor = 1.5
)

// RMSVAD is a Root Mean Square based voice activity detector for 16-bit
// little-endian PCM.
type RMSVAD struct {
	threshold    float64
	silenceLimit time.Duration
	isSpeaking   bool
	silenceStart time.Time

	consecutiveFrames int
	minConfirmed      int
	lastRMS           float64
}

func NewRMSVAD(threshold float64, silenceLimit time.Duration) *RMSVAD {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &RMSVAD{
		threshold:    threshold,
		silenceLimit: silenceLimit,
		minConfirmed: 3,
	}
}

// SetMinConfirmed sets the number of consecutive loud frames needed to
// confirm speech start.
func (v *RMSVAD) SetMinConfirmed(count int) {
	v.minConfirmed = count
}

func (v *RMSVAD) SetThreshold(threshold float64) {
	v.threshold = threshold
}

func (v *RMSVAD) Threshold() float64 {
	return v.threshold
}

func (v *RMSVAD) LastRMS() float64 {
	return v.lastRMS
}

func (v *RMSVAD) IsSpeaking() bool {
	return v.isSpeaking
}

// Calibrate derives the speech threshold from chunks of ambient noise.
func (v *RMSVAD) Calibrate(ambient [][]byte) float64 {
	if len(ambient) == 0 {
		return v.threshold
	}
	var sum float64
	for _, chunk := range ambient {
		sum += RMS(chunk)
	}
	threshold := sum / float64(len(ambient)) * calibrationFactor
	if threshold < minThreshold {
		threshold = minThreshold
	}
	v.threshold = threshold
	return threshold
}

// Process feeds one chunk captured at now.
func (v *RMSVAD) Process(chunk []byte, now time.Time) VADEvent {
	rms := RMS(chunk)
	v.lastRMS = rms

	if rms > v.threshold {
		v.consecutiveFrames++
		v.silenceStart = time.Time{}
		if !v.isSpeaking && v.consecutiveFrames >= v.minConfirmed {
			v.isSpeaking = true
			return VADSpeechStart
		}
		return VADNone
	}

	v.consecutiveFrames = 0
	if !v.isSpeaking {
		return VADNone
	}
	if v.silenceStart.IsZero() {
		v.silenceStart = now
	}
	if now.Sub(v.silenceStart) >= v.silenceLimit {
		v.isSpeaking = false
		v.silenceStart = time.Time{}
		return VADSpeechEnd
	}
	return VADNone
}

func (v *RMSVAD) Reset() {
	v.isSpeaking = false
	v.silenceStart = time.Time{}
	v.consecutiveFrames = 0
}

// RMS returns the root mean square level of 16-bit PCM in [0, 1].
func RMS(chunk []byte) float64 {
	n := len(chunk) / 2
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(chunk); i += 2 {
		sample := int16(uint16(chunk[i]) | uint16(chunk[i+1])<<8)
		f := float64(sample) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}
