package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/ridergrid/internal/adapters/http/api"
	"github.com/okian/ridergrid/internal/adapters/repository"
	service "github.com/okian/ridergrid/internal/app"
	"github.com/okian/ridergrid/internal/domain/metric"
	"github.com/okian/ridergrid/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

func newServer(svc *service.Service, opts ...api.Option) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(svc, opts...).Register(mux)
	return httptest.NewServer(mux)
}

type checkFunc func(context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func do(ts *httptest.Server, method, path, body string) (int, map[string]any) {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		panic(err)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 && raw[0] == '{' {
		_ = json.Unmarshal(raw, &out)
	}
	out["_raw"] = string(raw)
	return resp.StatusCode, out
}

const homeRoster = `{"name":"home","tag":"home","riders":[{"id":1,"name":"Ann [ALP]"},{"id":2,"name":"Bea"}]}`

func TestAPI(t *testing.T) {
	Convey("Given a started service behind the API", t, func() {
		svc := service.New(service.WithBlobStore(repository.NewMemoryBlobStore()), service.WithWorkerCount(1))
		So(svc.Start(context.Background()), ShouldBeNil)
		ts := newServer(svc)
		Reset(func() {
			ts.Close()
			_ = svc.Stop(context.Background())
		})

		Convey("Health and metrics are served", func() {
			code, body := do(ts, http.MethodGet, "/healthz", "")
			So(code, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "ok")

			code, body = do(ts, http.MethodGet, "/metrics", "")
			So(code, ShouldEqual, http.StatusOK)
			So(body["_raw"], ShouldContainSubstring, "ridergrid_")
		})

		Convey("The column catalog is listed", func() {
			code, body := do(ts, http.MethodGet, "/columns", "")
			So(code, ShouldEqual, http.StatusOK)
			So(body["columns"], ShouldHaveLength, len(metric.Catalog()))
			So(body["profiles"], ShouldHaveLength, len(metric.Profiles()))
		})

		Convey("Stats report a started service", func() {
			code, body := do(ts, http.MethodGet, "/stats", "")
			So(code, ShouldEqual, http.StatusOK)
			So(body["started"], ShouldEqual, true)
			So(body["credentials"], ShouldEqual, "missing")
		})

		Convey("When a roster is uploaded", func() {
			code, body := do(ts, http.MethodPost, "/rosters", homeRoster)
			So(code, ShouldEqual, http.StatusCreated)
			So(body["name"], ShouldEqual, "home")

			Convey("Then it is listed", func() {
				code, body := do(ts, http.MethodGet, "/rosters", "")
				So(code, ShouldEqual, http.StatusOK)
				So(body["rosters"], ShouldHaveLength, 1)
			})

			Convey("And edited athletes build a ranked cohort", func() {
				code, _ := do(ts, http.MethodPatch, "/athletes/1", `{"fields":{"rating":300}}`)
				So(code, ShouldEqual, http.StatusOK)
				code, _ = do(ts, http.MethodPatch, "/athletes/2", `{"fields":{"rating":100}}`)
				So(code, ShouldEqual, http.StatusOK)

				code, body := do(ts, http.MethodPost, "/cohort",
					`{"sources":["home"],"columns":["team","rating"],"sort":{"column":"rating","ascending":false}}`)
				So(code, ShouldEqual, http.StatusOK)

				rows := body["rows"].([]any)
				So(rows, ShouldHaveLength, 2)
				first := rows[0].(map[string]any)
				So(first["athlete_id"], ShouldEqual, 1)
				So(first["team"], ShouldEqual, "ALP")
				display := first["display"].(map[string]any)
				So(display["rating"], ShouldEqual, "300.0")
				So(display["team"], ShouldEqual, "ALP")

				stats := body["stats"].(map[string]any)["rating"].(map[string]any)
				So(stats["max"], ShouldEqual, 300)
				So(stats["min"], ShouldEqual, 100)
				So(body["columns"], ShouldHaveLength, 2)
			})

			Convey("And the roster can be deleted", func() {
				code, _ := do(ts, http.MethodDelete, "/rosters/home", "")
				So(code, ShouldEqual, http.StatusNoContent)
				code, body := do(ts, http.MethodDelete, "/rosters/home", "")
				So(code, ShouldEqual, http.StatusNotFound)
				So(body["code"], ShouldEqual, "not_found")
			})
		})

		Convey("Invalid rosters are rejected", func() {
			code, body := do(ts, http.MethodPost, "/rosters", `{"name":"x","riders":[]}`)
			So(code, ShouldEqual, http.StatusBadRequest)
			So(body["code"], ShouldEqual, "bad_request")

			code, body = do(ts, http.MethodPost, "/rosters", `{"name":"nearby","riders":[{"id":1}]}`)
			So(code, ShouldEqual, http.StatusConflict)
			So(body["code"], ShouldEqual, "reserved")
		})

		Convey("Cohort requests are validated", func() {
			code, _ := do(ts, http.MethodPost, "/cohort", `{"sources":["away"]}`)
			So(code, ShouldEqual, http.StatusNotFound)

			code, _ = do(ts, http.MethodPost, "/cohort", `{"columns":["bogus"]}`)
			So(code, ShouldEqual, http.StatusBadRequest)

			code, _ = do(ts, http.MethodPost, "/cohort", `{"sources":`)
			So(code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("An empty cohort body builds the default table", func() {
			code, body := do(ts, http.MethodPost, "/cohort", "")
			So(code, ShouldEqual, http.StatusOK)
			So(body["rows"], ShouldBeEmpty)
			So(body["columns"], ShouldHaveLength, len(metric.DefaultColumnIDs()))
		})

		Convey("Athlete records are managed", func() {
			code, _ := do(ts, http.MethodGet, "/athletes/abc", "")
			So(code, ShouldEqual, http.StatusBadRequest)

			code, _ = do(ts, http.MethodGet, "/athletes/99", "")
			So(code, ShouldEqual, http.StatusNotFound)

			code, _ = do(ts, http.MethodPatch, "/athletes/7", `{"fields":{}}`)
			So(code, ShouldEqual, http.StatusBadRequest)

			code, body := do(ts, http.MethodPatch, "/athletes/7", `{"fields":{"ftp":280,"team":"Alpha"}}`)
			So(code, ShouldEqual, http.StatusOK)
			So(body["team"], ShouldEqual, "Alpha")
			So(body["user_edited"], ShouldContainKey, "ftp")

			code, _ = do(ts, http.MethodDelete, "/athletes/7/edits/ftp", "")
			So(code, ShouldEqual, http.StatusNoContent)
			_, body = do(ts, http.MethodGet, "/athletes/7", "")
			So(body["user_edited"], ShouldNotContainKey, "ftp")

			code, body = do(ts, http.MethodGet, "/athletes", "")
			So(code, ShouldEqual, http.StatusOK)
			So(body["athletes"], ShouldHaveLength, 1)

			code, _ = do(ts, http.MethodDelete, "/athletes/7", "")
			So(code, ShouldEqual, http.StatusNoContent)
			code, _ = do(ts, http.MethodDelete, "/athletes/7", "")
			So(code, ShouldEqual, http.StatusNotFound)

			code, _ = do(ts, http.MethodDelete, "/athletes", "")
			So(code, ShouldEqual, http.StatusNoContent)
		})

		Convey("Telemetry is accepted asynchronously", func() {
			code, body := do(ts, http.MethodPost, "/telemetry",
				`{"riders":[{"id":5,"hr":150,"ts":"2026-01-01T10:00:00Z"},{"id":0}]}`)
			So(code, ShouldEqual, http.StatusAccepted)
			So(body["accepted"], ShouldEqual, 1)
			So(body["rejected"], ShouldEqual, 1)

			code, body = do(ts, http.MethodPost, "/telemetry",
				`{"riders":[{"id":5,"hr":150,"ts":"2026-01-01T10:00:00Z"}]}`)
			So(code, ShouldEqual, http.StatusAccepted)
			So(body["duplicates"], ShouldEqual, 1)
		})

		Convey("Imports need credentials", func() {
			code, body := do(ts, http.MethodPost, "/import", `{"ids":[1,2]}`)
			So(code, ShouldEqual, http.StatusPreconditionFailed)
			So(body["code"], ShouldEqual, "no_credentials")
			So(body, ShouldNotContainKey, "report")

			code, _ = do(ts, http.MethodPut, "/riderdb/credentials", `{"api_key":"  "}`)
			So(code, ShouldEqual, http.StatusPreconditionFailed)

			code, _ = do(ts, http.MethodPut, "/riderdb/credentials", `{"api_key":"k"}`)
			So(code, ShouldEqual, http.StatusNoContent)
		})

		Convey("The max mode is switched", func() {
			code, body := do(ts, http.MethodPut, "/settings/max-mode", `{"mode":"session"}`)
			So(code, ShouldEqual, http.StatusOK)
			So(body["mode"], ShouldEqual, "session")

			code, _ = do(ts, http.MethodPut, "/settings/max-mode", `{"mode":"bogus"}`)
			So(code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Unknown methods are refused by the router", func() {
			code, _ := do(ts, http.MethodGet, "/cohort", "")
			So(code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestAPIImportFailure(t *testing.T) {
	Convey("Given a rider database that fails the second batch", t, func() {
		calls := 0
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls > 1 {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			_, _ = io.WriteString(w, `{"riders":[{"id":1,"name":"Ann","rating":250}]}`)
		}))
		svc := service.New(
			service.WithBlobStore(repository.NewMemoryBlobStore()),
			service.WithWorkerCount(1),
			service.WithRiderDB(upstream.URL, 0, 1),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		ts := newServer(svc)
		Reset(func() {
			ts.Close()
			upstream.Close()
			_ = svc.Stop(context.Background())
		})

		code, _ := do(ts, http.MethodPut, "/riderdb/credentials", `{"api_key":"k"}`)
		So(code, ShouldEqual, http.StatusNoContent)

		Convey("Then the partial report comes back with a 502", func() {
			code, body := do(ts, http.MethodPost, "/import", `{"ids":[1,2]}`)
			So(code, ShouldEqual, http.StatusBadGateway)
			So(body["code"], ShouldEqual, "upstream_failed")

			report := body["report"].(map[string]any)
			So(report["batches"], ShouldEqual, 1)
			So(report["imported"], ShouldResemble, []any{float64(1)})

			_, rec := do(ts, http.MethodGet, "/athletes/1", "")
			So(rec["name"], ShouldEqual, "Ann")
		})
	})
}

func TestAPINotStarted(t *testing.T) {
	Convey("Given a service that was never started", t, func() {
		ts := newServer(service.New())
		Reset(ts.Close)

		Convey("Then stateful routes answer 503", func() {
			code, body := do(ts, http.MethodGet, "/athletes", "")
			So(code, ShouldEqual, http.StatusServiceUnavailable)
			So(body["code"], ShouldEqual, "unavailable")
		})
	})
}

func TestAPIHealthChecks(t *testing.T) {
	Convey("Given a service whose store check can fail", t, func() {
		svc := service.New(service.WithBlobStore(repository.NewMemoryBlobStore()), service.WithWorkerCount(1))
		So(svc.Start(context.Background()), ShouldBeNil)
		var down error
		ts := newServer(svc, api.WithHealthCheck("store", checkFunc(func(context.Context) error { return down })))
		Reset(func() {
			ts.Close()
			_ = svc.Stop(context.Background())
		})

		Convey("When the store answers", func() {
			code, body := do(ts, http.MethodGet, "/healthz", "")
			So(code, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "ok")
			So(body["checks"], ShouldResemble, map[string]any{"store": "ok"})
		})

		Convey("When the store is unreachable", func() {
			down = errors.New("connection refused")
			code, body := do(ts, http.MethodGet, "/healthz", "")
			So(code, ShouldEqual, http.StatusServiceUnavailable)
			So(body["status"], ShouldEqual, "unhealthy")
			So(body["checks"], ShouldResemble, map[string]any{"store": "unavailable"})
		})
	})
}
