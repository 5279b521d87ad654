package healthchecker

import (
	"context"

	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"git.brightsales.dev/crm/golang/callweaver/internal/minio"
	"go.uber.org/zap"
)

var testFileKey = "test.wav"

func CheckMinio() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	minioClient, err := minio.NewMinioClient()
	if err != nil {
		logging.Logger.Error("failed to create new minio client", zap.String("error", err.Error()))
		return err
	}

	buf := readTestFile()

	_, err = minioClient.Upload(ctx, buf, testFileKey)
	if err != nil {
		return err
	}

	_, err = minioClient.Download(ctx, testFileKey)
	if err != nil {
		return err
	}

	return nil
}
