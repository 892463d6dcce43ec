package audio

// Resample 用线性插值把波形转换到目标采样率。采样率相同时原样返回。
func Resample(w *Waveform, targetRate int) *Waveform {
	if w == nil || targetRate <= 0 || w.SampleRate <= 0 || w.SampleRate == targetRate {
		return w
	}
	if len(w.Samples) == 0 {
		return &Waveform{SampleRate: targetRate}
	}

	ratio := float64(w.SampleRate) / float64(targetRate)
	outLen := int(float64(len(w.Samples)) / ratio)
	if outLen == 0 {
		outLen = 1
	}
	out := make([]float32, outLen)
	last := len(w.Samples) - 1

	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = w.Samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = w.Samples[idx]*(1-frac) + w.Samples[idx+1]*frac
	}

	return &Waveform{Samples: out, SampleRate: targetRate}
}
