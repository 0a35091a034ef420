package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"WEBHOOK_URL", "WEBHOOK_TIMEOUT", "CRON_EXPRESSION", "CRON_TIMEZONE",
	"RUN_AS_CRONJOB", "RUN_MODE", "PORT", "HEALTH_ENABLED",
	"LOG_LEVEL", "LOG_FORMAT", "NATS_URL", "NATS_SUBJECT_PREFIX",
}

func TestRun(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
		// withTarget points WEBHOOK_URL at a local endpoint answering status
		withTarget bool
		status     int
		// blockTarget holds the request until the test finishes
		blockTarget bool
		// signalAtStart queues SIGTERM before run starts; signalInFlight
		// sends it once the target has received the request
		signalAtStart  bool
		signalInFlight bool
		expectedCode   int
	}{
		{
			name:         "Missing webhook URL",
			env:          map[string]string{"RUN_MODE": "once"},
			expectedCode: 1,
		},
		{
			name:         "Missing webhook URL in legacy cronjob mode",
			env:          map[string]string{"RUN_AS_CRONJOB": "true"},
			expectedCode: 1,
		},
		{
			name:         "Invalid cron expression",
			env:          map[string]string{"RUN_MODE": "schedule", "CRON_EXPRESSION": "not a cron"},
			withTarget:   true,
			status:       http.StatusOK,
			expectedCode: 1,
		},
		{
			name:         "Invalid timezone",
			env:          map[string]string{"RUN_MODE": "schedule", "CRON_TIMEZONE": "Mars/Olympus"},
			withTarget:   true,
			status:       http.StatusOK,
			expectedCode: 1,
		},
		{
			name:         "One-shot success",
			env:          map[string]string{"RUN_MODE": "once"},
			withTarget:   true,
			status:       http.StatusNoContent,
			expectedCode: 0,
		},
		{
			name:         "One-shot server error",
			env:          map[string]string{"RUN_MODE": "once"},
			withTarget:   true,
			status:       http.StatusInternalServerError,
			expectedCode: 1,
		},
		{
			name:           "One-shot interrupted by signal",
			env:            map[string]string{"RUN_MODE": "once"},
			withTarget:     true,
			status:         http.StatusOK,
			blockTarget:    true,
			signalInFlight: true,
			expectedCode:   0,
		},
		{
			name:          "Schedule stopped by signal",
			env:           map[string]string{"RUN_MODE": "schedule", "CRON_EXPRESSION": "0 0 1 1 *"},
			withTarget:    true,
			status:        http.StatusOK,
			signalAtStart: true,
			expectedCode:  0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for _, key := range envKeys {
				t.Setenv(key, "")
			}
			t.Setenv("LOG_LEVEL", "warn")
			for key, value := range tc.env {
				t.Setenv(key, value)
			}

			received := make(chan struct{}, 1)
			if tc.withTarget {
				release := make(chan struct{})
				target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					select {
					case received <- struct{}{}:
					default:
					}
					if tc.blockTarget {
						select {
						case <-release:
						case <-r.Context().Done():
						}
					}
					w.WriteHeader(tc.status)
				}))
				t.Cleanup(target.Close)
				t.Cleanup(func() { close(release) })

				t.Setenv("WEBHOOK_URL", target.URL)
			}

			signals := make(chan os.Signal, 1)
			if tc.signalAtStart {
				signals <- syscall.SIGTERM
			}

			done := make(chan int, 1)
			go func() {
				done <- run(signals)
			}()

			if tc.signalInFlight {
				select {
				case <-received:
				case <-time.After(5 * time.Second):
					t.Fatal("webhook was not sent")
				}
				signals <- syscall.SIGTERM
			}

			select {
			case code := <-done:
				assert.Equal(t, tc.expectedCode, code)
			case <-time.After(10 * time.Second):
				require.FailNow(t, "run did not return")
			}
		})
	}
}
