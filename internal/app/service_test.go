package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/ridergrid/internal/adapters/repository"
	"github.com/okian/ridergrid/internal/adapters/riderdb"
	service "github.com/okian/ridergrid/internal/app"
	"github.com/okian/ridergrid/internal/domain/model"
	"github.com/okian/ridergrid/internal/domain/ranking"
	"github.com/okian/ridergrid/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithOutput(io.Discard)); err != nil {
		panic(err)
	}
}

func started(blobs repository.BlobStore, opts ...service.Option) *service.Service {
	svc := service.New(append([]service.Option{service.WithBlobStore(blobs), service.WithWorkerCount(2)}, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		panic(err)
	}
	return svc
}

func home() ranking.Source {
	return ranking.Source{Name: "home", Tag: model.TagHome, Entrants: []ranking.Entrant{
		{AthleteID: 1, Name: "A"}, {AthleteID: 2, Name: "B"}, {AthleteID: 3, Name: "C"}, {AthleteID: 4, Name: "D"},
	}}
}

func drain(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that was not started", t, func() {
		svc := service.New()

		Convey("Then operations report ErrNotStarted", func() {
			_, err := svc.BuildCohort(context.Background(), ranking.Session{})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldBeFalse)
			So(svc.Stop(context.Background()), ShouldBeNil)
		})
	})

	Convey("Given a started service", t, func() {
		svc := started(repository.NewMemoryBlobStore())

		Convey("Then starting again is a no-op and stats are populated", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldBeTrue)
			So(stats["credentials"], ShouldEqual, "missing")
			So(stats["maxMode"], ShouldEqual, "stored")
			So(svc.Stop(context.Background()), ShouldBeNil)
		})
	})
}

func TestService_BuildCohort(t *testing.T) {
	ctx := context.Background()

	Convey("Given a roster with stored power numbers", t, func() {
		svc := started(repository.NewMemoryBlobStore())
		defer func() { _ = svc.Stop(ctx) }()
		So(svc.PutRoster(ctx, home()), ShouldBeNil)
		for id, w := range map[model.AthleteID]float64{1: 300, 2: 250, 3: 400} {
			_, err := svc.EditAthlete(ctx, id, map[string]model.Value{"w60": model.Num(w)})
			So(err, ShouldBeNil)
		}

		Convey("When the cohort is built sorted by w60", func() {
			res, err := svc.BuildCohort(ctx, ranking.Session{
				Sources: []string{"home"},
				Columns: []string{"w60"},
				Sort:    model.SortSpec{ColumnID: "w60"},
			})

			Convey("Then rows are ranked and scored", func() {
				So(err, ShouldBeNil)
				So(len(res.Rows), ShouldEqual, 4)
				So(res.Rows[0].AthleteID, ShouldEqual, 3)
				So(res.Rows[3].AthleteID, ShouldEqual, 4)
				So(res.Stats["w60"], ShouldResemble, model.ColumnStats{Min: 250, Median: 300, Max: 400})
				So(*res.Rows[0].Scores["w60"], ShouldEqual, 100)
				So(res.Rows[3].Scores["w60"], ShouldBeNil)
			})
		})

		Convey("When no sources are named", func() {
			res, err := svc.BuildCohort(ctx, ranking.Session{})
			So(err, ShouldBeNil)
			So(len(res.Rows), ShouldEqual, 4)
		})

		Convey("When an unknown source is named", func() {
			_, err := svc.BuildCohort(ctx, ranking.Session{Sources: []string{"home", "away"}})
			So(errors.Is(err, service.ErrUnknownSource), ShouldBeTrue)
		})

		Convey("When the nearby name is used for a roster", func() {
			err := svc.PutRoster(ctx, ranking.Source{Name: service.NearbySource})
			So(errors.Is(err, service.ErrReservedSource), ShouldBeTrue)
		})

		Convey("When a roster is deleted", func() {
			So(svc.DeleteRoster(ctx, "home"), ShouldBeNil)
			So(svc.Rosters(), ShouldBeEmpty)
			So(errors.Is(svc.DeleteRoster(ctx, "home"), service.ErrUnknownSource), ShouldBeTrue)
		})
	})
}

func TestService_Telemetry(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc := started(repository.NewMemoryBlobStore())
		defer func() { _ = svc.Stop(ctx) }()
		drain(svc.Changes())
		ts := time.Unix(1_700_000_000, 0)
		snap := service.Snapshot{TS: ts, Riders: []model.Sample{
			{AthleteID: 10, Name: "Near One", HeartRate: 170, Fields: map[string]float64{"w60": 410}},
			{AthleteID: 11, Name: "Near Two", EventGroup: "B"},
			{AthleteID: -1},
		}}

		Convey("When a snapshot is ingested", func() {
			res, err := svc.IngestTelemetry(ctx, snap)

			Convey("Then valid samples are queued and the nearby source is replaced", func() {
				So(err, ShouldBeNil)
				So(res, ShouldResemble, service.IngestResult{Accepted: 2, Rejected: 1})
				So(len(svc.Changes()), ShouldEqual, 1)

				cohort, err := svc.BuildCohort(ctx, ranking.Session{Sources: []string{service.NearbySource}, Columns: []string{"w60", "max_hr"}})
				So(err, ShouldBeNil)
				So(len(cohort.Rows), ShouldEqual, 2)
				So(cohort.Rows[0].GroupTag, ShouldEqual, model.TagNearby)
			})

			Convey("Then the readings reach the store", func() {
				So(eventually(func() bool {
					rec, err := svc.Athlete(ctx, 10)
					if err != nil {
						return false
					}
					v, _ := rec.Field("w60").Float()
					return v == 410 && rec.Name == "Near One"
				}), ShouldBeTrue)
			})

			Convey("Then the same snapshot again is dropped as duplicate", func() {
				again, err := svc.IngestTelemetry(ctx, snap)
				So(err, ShouldBeNil)
				So(again.Duplicates, ShouldEqual, 2)
				So(again.Accepted, ShouldEqual, 0)
			})
		})

		Convey("When the max mode is switched", func() {
			m, err := svc.SetMaxMode(ctx, "session")
			So(err, ShouldBeNil)
			So(string(m), ShouldEqual, "session")

			_, err = svc.SetMaxMode(ctx, "forever")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestService_SessionMaxima(t *testing.T) {
	ctx := context.Background()

	Convey("Given a stored maximum from an earlier run", t, func() {
		blobs := repository.NewMemoryBlobStore()
		first := started(blobs)
		_, err := first.IngestTelemetry(ctx, service.Snapshot{TS: time.Unix(1_700_000_000, 0), Riders: []model.Sample{
			{AthleteID: 10, Fields: map[string]float64{"w60": 500}},
		}})
		So(err, ShouldBeNil)
		So(eventually(func() bool {
			rec, err := first.Athlete(ctx, 10)
			if err != nil {
				return false
			}
			v, _ := rec.Field("w60").Float()
			return v == 500
		}), ShouldBeTrue)
		So(first.Stop(ctx), ShouldBeNil)

		second := started(blobs)
		defer func() { _ = second.Stop(ctx) }()
		_, err = second.SetMaxMode(ctx, "session")
		So(err, ShouldBeNil)

		Convey("When a lower reading arrives in session mode", func() {
			_, err := second.IngestTelemetry(ctx, service.Snapshot{TS: time.Unix(1_700_000_100, 0), Riders: []model.Sample{
				{AthleteID: 10, Fields: map[string]float64{"w60": 300}},
			}})
			So(err, ShouldBeNil)
			sess := ranking.Session{Sources: []string{service.NearbySource}, Columns: []string{"w60"}}
			shown := func() float64 {
				res, err := second.BuildCohort(ctx, sess)
				if err != nil || len(res.Rows) != 1 {
					return 0
				}
				v, _ := res.Rows[0].Values["w60"].Float()
				return v
			}

			Convey("Then the table shows the session maximum and the store keeps its own", func() {
				So(eventually(func() bool { return shown() == 300 }), ShouldBeTrue)
				rec, err := second.Athlete(ctx, 10)
				So(err, ShouldBeNil)
				v, _ := rec.Field("w60").Float()
				So(v, ShouldEqual, 500)

				_, err = second.SetMaxMode(ctx, "stored")
				So(err, ShouldBeNil)
				So(shown(), ShouldEqual, 500)
			})
		})
	})
}

func TestService_Persistence(t *testing.T) {
	ctx := context.Background()

	Convey("Given state written by one service", t, func() {
		blobs := repository.NewMemoryBlobStore()
		first := started(blobs)
		So(first.PutRoster(ctx, home()), ShouldBeNil)
		_, err := first.SetMaxMode(ctx, "session")
		So(err, ShouldBeNil)
		_, err = first.EditAthlete(ctx, 2, map[string]model.Value{"team": model.Str("Alpha")})
		So(err, ShouldBeNil)
		So(first.SetCredentials(ctx, riderdb.Credentials{APIKey: "k"}), ShouldBeNil)
		So(first.Stop(ctx), ShouldBeNil)

		Convey("Then a restarted service sees it", func() {
			second := started(blobs)
			defer func() { _ = second.Stop(ctx) }()
			stats := second.GetStats()
			So(stats["rosters"], ShouldEqual, 1)
			So(stats["maxMode"], ShouldEqual, "session")
			So(stats["credentials"], ShouldEqual, "valid")
			rec, err := second.Athlete(ctx, 2)
			So(err, ShouldBeNil)
			So(rec.Team, ShouldEqual, "Alpha")
			So(rec.IsUserEdited("team"), ShouldBeTrue)
		})
	})
}

func TestService_Import(t *testing.T) {
	ctx := context.Background()

	Convey("Given a rider database", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				RiderIDs []model.AthleteID `json:"rider_ids"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			riders := make([]map[string]any, 0, len(req.RiderIDs))
			for _, id := range req.RiderIDs {
				riders = append(riders, map[string]any{"id": id, "team": "Beta", "rating": 400})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"riders": riders})
		}))
		defer srv.Close()

		svc := started(repository.NewMemoryBlobStore(), service.WithRiderDB(srv.URL, time.Second, 2))
		defer func() { _ = svc.Stop(ctx) }()
		So(svc.PutRoster(ctx, home()), ShouldBeNil)

		Convey("When credentials are missing", func() {
			_, err := svc.Import(ctx, service.ImportRequest{IDs: []model.AthleteID{1}}, nil)
			So(errors.Is(err, riderdb.ErrNoCredentials), ShouldBeTrue)
		})

		Convey("When a roster is imported over a user edit", func() {
			So(svc.SetCredentials(ctx, riderdb.Credentials{APIKey: "k"}), ShouldBeNil)
			_, err := svc.EditAthlete(ctx, 1, map[string]model.Value{"team": model.Str("Alpha")})
			So(err, ShouldBeNil)

			var batches int
			rep, err := svc.Import(ctx, service.ImportRequest{Source: "home"}, func(riderdb.Progress) { batches++ })

			Convey("Then every entrant is imported and the edit survives", func() {
				So(err, ShouldBeNil)
				So(len(rep.Imported), ShouldEqual, 4)
				So(batches, ShouldEqual, 2)
				one, _ := svc.Athlete(ctx, 1)
				two, _ := svc.Athlete(ctx, 2)
				So(one.Team, ShouldEqual, "Alpha")
				So(two.Team, ShouldEqual, "Beta")
			})
		})

		Convey("When the source is unknown", func() {
			_, err := svc.Import(ctx, service.ImportRequest{Source: "away"}, nil)
			So(errors.Is(err, service.ErrUnknownSource), ShouldBeTrue)
		})
	})
}

func TestService_AthleteCRUD(t *testing.T) {
	ctx := context.Background()

	Convey("Given stored athletes", t, func() {
		svc := started(repository.NewMemoryBlobStore())
		defer func() { _ = svc.Stop(ctx) }()
		for _, id := range []model.AthleteID{3, 1, 2} {
			_, err := svc.EditAthlete(ctx, id, map[string]model.Value{"ftp": model.Num(250)})
			So(err, ShouldBeNil)
		}

		Convey("Then they are listed by id", func() {
			all, err := svc.Athletes(ctx)
			So(err, ShouldBeNil)
			So(len(all), ShouldEqual, 3)
			So(all[0].ID, ShouldEqual, 1)
			So(all[2].ID, ShouldEqual, 3)
		})

		Convey("Then each mutation advances the store version", func() {
			before := svc.GetStats()["storeVersion"].(uint64)
			So(before, ShouldEqual, uint64(3))
			So(svc.RemoveAthlete(ctx, 2), ShouldBeNil)
			So(svc.GetStats()["storeVersion"], ShouldEqual, before+1)
		})

		Convey("Then edits can be cleared", func() {
			So(svc.ClearEdit(ctx, 1, "ftp"), ShouldBeNil)
			rec, _ := svc.Athlete(ctx, 1)
			So(rec.IsUserEdited("ftp"), ShouldBeFalse)
		})

		Convey("Then empty edits are rejected", func() {
			_, err := svc.EditAthlete(ctx, 1, nil)
			So(errors.Is(err, repository.ErrInvalidField), ShouldBeTrue)
		})

		Convey("Then removal and reset delete records", func() {
			So(svc.RemoveAthlete(ctx, 2), ShouldBeNil)
			_, err := svc.Athlete(ctx, 2)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			So(svc.ResetAthletes(ctx), ShouldBeNil)
			all, _ := svc.Athletes(ctx)
			So(all, ShouldBeEmpty)
		})
	})
}
