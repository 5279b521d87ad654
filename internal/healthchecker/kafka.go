package healthchecker

import (
	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/kafka"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var healtcheckerMsg = "healthchecker msg"

func CheckKafkaProducer() error {
	kafkaProducer, err := kafka.NewProducer()
	if err != nil {
		logging.Logger.Error("failed to create new kafka producer client", zap.String("error", err.Error()))
		return err
	}

	_, _, err = kafkaProducer.SendMessage(
		config.Conf.KafkaCallProcessedTopic,
		[]byte(uuid.New().String()),
		[]byte(healtcheckerMsg),
	)

	return err
}
