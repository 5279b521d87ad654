package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"github.com/goccy/go-json"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"
)

var (
	ErrAudioBufferNilOrEmpty = errors.New("audio buffer is nil or empty")
	ErrDurationNotFound      = errors.New("duration not found in ffprobe output")
)

// DurationService measures recording length locally. Provider callbacks
// sometimes omit the duration field; probing the archived audio fills it in.
type DurationService struct {
	TempDir string
}

func NewDurationService() *DurationService {
	return &DurationService{
		TempDir: os.TempDir(),
	}
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// GetDuration extracts the duration in seconds from an audio buffer.
func (s *DurationService) GetDuration(
	ctx context.Context,
	audioBuffer *bytes.Buffer,
	callSid string,
) (int, error) {
	if audioBuffer == nil || audioBuffer.Len() == 0 {
		return 0, ErrAudioBufferNilOrEmpty
	}

	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	logging.Logger.Info("Extracting duration from audio file",
		zap.String("call_sid", callSid),
		zap.Int("buffer_size", audioBuffer.Len()),
	)

	tempFile, err := os.CreateTemp(s.TempDir, fmt.Sprintf("duration_%s_*.wav", callSid))
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	tempFilePath := tempFile.Name()

	defer func() {
		_ = os.Remove(tempFilePath)
	}()

	_, err = io.Copy(tempFile, bytes.NewReader(audioBuffer.Bytes()))
	if err != nil {
		_ = tempFile.Close()
		return 0, fmt.Errorf("failed to write audio to temp file: %w", err)
	}

	err = tempFile.Close()
	if err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	probeData, err := ffmpeg.Probe(tempFilePath)
	if err != nil {
		logging.Logger.Error("ffprobe failed to extract duration",
			zap.String("call_sid", callSid),
			zap.String("error", err.Error()),
		)

		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var output ffprobeOutput

	err = json.Unmarshal([]byte(probeData), &output)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if output.Format.Duration == "" {
		return 0, ErrDurationNotFound
	}

	durationFloat, err := strconv.ParseFloat(output.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	durationSeconds := int(durationFloat)

	logging.Logger.Info("Duration extracted successfully",
		zap.String("call_sid", callSid),
		zap.Int("duration_seconds", durationSeconds),
		zap.Float64("duration_exact", durationFloat),
	)

	return durationSeconds, nil
}
