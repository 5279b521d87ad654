package test

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"git.brightsales.dev/crm/golang/callweaver/internal/callrecord"
	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"github.com/goccy/go-json"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	testPostgresUser     = "callweaver"
	testPostgresPassword = "callweaver"
	testPostgresDatabase = "callweaver_test"
)

// startPostgres launches a disposable Postgres container and returns a gorm
// connection with the schema migrated.
func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	pool, err := NewPool("")
	require.NoError(t, err)

	pool.MaxWait = 60 * time.Second

	hostPort := freePort(t)

	resource, err := pool.RunWithOptions(&RunOptions{
		Repository: "postgres",
		Tag:        "14-alpine",
		Env: []string{
			"POSTGRES_USER=" + testPostgresUser,
			"POSTGRES_PASSWORD=" + testPostgresPassword,
			"POSTGRES_DB=" + testPostgresDatabase,
		},
		ExposedPorts: []string{"5432/tcp"},
		PortBindings: map[docker.Port][]docker.PortBinding{
			"5432/tcp": {{HostIP: "127.0.0.1", HostPort: hostPort}},
		},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})

	dsn := fmt.Sprintf(
		"host=127.0.0.1 user=%s password=%s dbname=%s port=%s sslmode=disable",
		testPostgresUser,
		testPostgresPassword,
		testPostgresDatabase,
		hostPort,
	)

	var dbConn *gorm.DB

	err = pool.Retry(func() error {
		var openErr error

		dbConn, openErr = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormLogger.Default.LogMode(gormLogger.Silent),
		})
		if openErr != nil {
			return openErr
		}

		sqlDB, pingErr := dbConn.DB()
		if pingErr != nil {
			return pingErr
		}

		return sqlDB.Ping()
	})
	require.NoError(t, err)

	err = dbConn.AutoMigrate(
		&callrecord.CallRecord{},
		&callrecord.Recording{},
		&callrecord.Transcript{},
	)
	require.NoError(t, err)

	config.Conf.PostgresHost = "127.0.0.1"
	config.Conf.PostgresPort = hostPort
	config.Conf.PostgresUsername = testPostgresUser
	config.Conf.PostgresPassword = testPostgresPassword
	config.Conf.PostgresDatabase = testPostgresDatabase

	return dbConn
}

func freePort(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() {
		_ = listener.Close()
	}()

	addr := listener.Addr().String()

	return addr[strings.LastIndex(addr, ":")+1:]
}

func callSid(suffix string) string {
	return "CA" + strings.Repeat("0", 32-len(suffix)) + suffix
}

func recordingSid(suffix string) string {
	return "RE" + strings.Repeat("0", 32-len(suffix)) + suffix
}

func transcriptSid(suffix string) string {
	return "GT" + strings.Repeat("0", 32-len(suffix)) + suffix
}

// providerMock serves the telephony and intelligence endpoints the
// coordinator and the transcript pipeline hit.
type providerMock struct {
	recordings      map[string][]map[string]any
	transcripts     map[string]map[string]any
	sentences       map[string][]map[string]any
	operatorResults map[string][]map[string]any
}

func newProviderMock(t *testing.T) *providerMock {
	t.Helper()

	mock := &providerMock{
		recordings:      map[string][]map[string]any{},
		transcripts:     map[string]map[string]any{},
		sentences:       map[string][]map[string]any{},
		operatorResults: map[string][]map[string]any{},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/Calls/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/Calls/")

		if strings.HasSuffix(path, "/Recordings") {
			sid := strings.TrimSuffix(path, "/Recordings")
			writeJSON(t, w, map[string]any{"recordings": mock.recordings[sid]})

			return
		}

		w.WriteHeader(http.StatusNotFound)
	})

	mux.HandleFunc("/Transcripts", func(w http.ResponseWriter, r *http.Request) {
		sourceSid := r.URL.Query().Get("SourceSid")

		matches := []map[string]any{}

		for _, job := range mock.transcripts {
			if job["source_sid"] == sourceSid {
				matches = append(matches, job)
			}
		}

		writeJSON(t, w, map[string]any{"transcripts": matches})
	})

	mux.HandleFunc("/Transcripts/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/Transcripts/"), "/")
		sid := parts[0]

		job, ok := mock.transcripts[sid]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		if len(parts) == 1 {
			writeJSON(t, w, job)
			return
		}

		switch parts[1] {
		case "Sentences":
			writeJSON(t, w, map[string]any{"sentences": mock.sentences[sid]})
		case "Words":
			writeJSON(t, w, map[string]any{"words": []map[string]any{}})
		case "OperatorResults":
			writeJSON(t, w, map[string]any{"operator_results": mock.operatorResults[sid]})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	server := httptest.NewServer(mux)

	t.Cleanup(server.Close)

	config.Conf.ProviderBaseUrl = server.URL
	config.Conf.ProviderAccountSid = "ACtest"
	config.Conf.ProviderAuthToken = "secret"
	config.Conf.IntelligenceBaseUrl = server.URL
	config.Conf.IntelligenceServiceSid = "GAtest"

	return mock
}

func writeJSON(t *testing.T, w http.ResponseWriter, payload map[string]any) {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (m *providerMock) addRecording(callSid string, rec map[string]any) {
	m.recordings[callSid] = append(m.recordings[callSid], rec)
}

func (m *providerMock) addTranscript(job map[string]any) {
	m.transcripts[job["sid"].(string)] = job
}

func (m *providerMock) addSentence(transcriptSid string, sentence map[string]any) {
	m.sentences[transcriptSid] = append(m.sentences[transcriptSid], sentence)
}

func (m *providerMock) addOperatorResult(transcriptSid string, result map[string]any) {
	m.operatorResults[transcriptSid] = append(m.operatorResults[transcriptSid], result)
}
