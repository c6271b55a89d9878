package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given a text logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf)), ShouldBeNil)
		ctx := context.Background()

		Convey("When an info line is logged", func() {
			Get().Info(ctx, "cohort built", Int("rows", 3), String("sort", "rating"))

			Convey("Then fields and caller are written", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, "cohort built")
				So(out, ShouldContainSubstring, "rows=3")
				So(out, ShouldContainSubstring, "sort=rating")
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When debug is below the level", func() {
			Get().Debug(ctx, "hidden")
			So(buf.String(), ShouldBeEmpty)

			So(SetLevelString("debug"), ShouldBeNil)
			Get().Debug(ctx, "shown")
			So(buf.String(), ShouldContainSubstring, "shown")
		})

		Convey("When a named logger carries fields", func() {
			Named("store").With(Int64("athlete", 7)).Warn(ctx, "merge skipped", Bool("protected", true))
			out := buf.String()
			So(out, ShouldContainSubstring, "merge skipped")
			So(out, ShouldContainSubstring, "store.athlete=7")
		})
	})

	Convey("Given a JSON logger", t, func() {
		var buf bytes.Buffer
		So(Init(WithOutput(&buf), WithFormat("json")), ShouldBeNil)
		Get().Error(context.Background(), "import failed", String("stage", "batch"))

		var line map[string]any
		So(json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line), ShouldBeNil)
		So(line["msg"], ShouldEqual, "import failed")
		So(line["stage"], ShouldEqual, "batch")
		So(Sync(), ShouldBeNil)
	})

	Convey("Given an unknown format", t, func() {
		So(Init(WithFormat("xml")), ShouldNotBeNil)
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level names", t, func() {
		for _, lvl := range []string{"debug", "INFO", "", "warn", "warning", "error"} {
			So(SetLevelString(lvl), ShouldBeNil)
		}
		So(SetLevelString("verbose"), ShouldNotBeNil)
	})
}
