package circuitbreak

import "git.brightsales.dev/crm/golang/callweaver/internal/logging"

var CircuitBreakChan chan string

const (
	ProviderService      = "provider"
	OpenAIService        = "openai"
	DBService            = "database"
	MinioService         = "minio"
	KafkaProducerService = "kafka_producer"
)

func Init() {
	CircuitBreakChan = make(chan string)
}

func TriggerError(service string) {
	if CircuitBreakChan == nil {
		logging.Logger.Fatal("callweaver app is not created")
	}

	CircuitBreakChan <- service
}
