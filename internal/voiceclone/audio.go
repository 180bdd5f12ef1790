package voiceclone

import (
	"bytes"

	apperr "ManagerAPI/pkg/errors"

	"github.com/go-audio/wav"
)

// validateAudio 校验参考音频：非空、不超过上限；声明为 WAV 的内容必须能解析且包含采样
func validateAudio(audio []byte, maxBytes int64) error {
	if len(audio) == 0 {
		return apperr.InvalidInput("reference audio is empty")
	}
	if maxBytes > 0 && int64(len(audio)) > maxBytes {
		return apperr.InvalidInput("reference audio is %d bytes, limit is %d", len(audio), maxBytes)
	}
	if !looksLikeWav(audio) {
		return nil
	}
	dec := wav.NewDecoder(bytes.NewReader(audio))
	if !dec.IsValidFile() {
		return apperr.InvalidInput("reference audio is not a valid WAV file")
	}
	// 头部声明的长度不可信，以实际解出的采样为准
	buf, err := wav.NewDecoder(bytes.NewReader(audio)).FullPCMBuffer()
	if err != nil || buf == nil || len(buf.Data) == 0 {
		return apperr.InvalidInput("reference audio has no samples")
	}
	return nil
}

func looksLikeWav(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}
