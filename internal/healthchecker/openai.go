package healthchecker

import (
	"context"

	"git.brightsales.dev/crm/golang/callweaver/internal/asr"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"go.uber.org/zap"
)

func CheckOpenAI() error {
	asrClient := asr.NewClient()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := asrClient.Transcribe(ctx, readTestFile(), "healthcheck")
	if err != nil {
		logging.Logger.Info("transcription api status", zap.Error(err))
		return err
	}

	return nil
}
