package model_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/ridergrid/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestValue(t *testing.T) {
	convey.Convey("Given metric values", t, func() {
		convey.Convey("When decoding a sparse field map", func() {
			var fields map[string]model.Value
			err := json.Unmarshal([]byte(`{"w60": 300, "name": "Ann", "hr": null}`), &fields)

			convey.Convey("Then each JSON shape maps to its kind", func() {
				convey.So(err, convey.ShouldBeNil)
				n, ok := fields["w60"].Float()
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(n, convey.ShouldEqual, 300)
				s, ok := fields["name"].Text()
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(s, convey.ShouldEqual, "Ann")
				convey.So(fields["hr"].IsNull(), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When decoding an object or bool", func() {
			var v model.Value
			convey.So(json.Unmarshal([]byte(`{"a":1}`), &v), convey.ShouldNotBeNil)
			convey.So(json.Unmarshal([]byte(`true`), &v), convey.ShouldNotBeNil)
		})

		convey.Convey("When encoding", func() {
			out, err := json.Marshal([]model.Value{model.Num(2.5), model.Str("x"), model.Null})
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(out), convey.ShouldEqual, `[2.5,"x",null]`)
		})
	})
}

func TestAthleteRecord(t *testing.T) {
	convey.Convey("Given an athlete record", t, func() {
		rec := model.NewAthleteRecord(7)
		rec.SetField(model.FieldTeam, model.Str("Alpha"))
		rec.SetField("w60", model.Num(310))

		convey.Convey("Then name and team are addressed like other fields", func() {
			convey.So(rec.Team, convey.ShouldEqual, "Alpha")
			convey.So(rec.Field(model.FieldTeam).String(), convey.ShouldEqual, "Alpha")
			convey.So(rec.Field(model.FieldName).IsNull(), convey.ShouldBeTrue)
		})

		convey.Convey("Then setting null removes a metric", func() {
			rec.SetField("w60", model.Null)
			_, present := rec.Fields["w60"]
			convey.So(present, convey.ShouldBeFalse)
		})

		convey.Convey("Then a clone does not share maps", func() {
			c := rec.Clone()
			c.SetField("w60", model.Num(1))
			c.UserEdited["w60"] = true
			n, _ := rec.Field("w60").Float()
			convey.So(n, convey.ShouldEqual, 310)
			convey.So(rec.IsUserEdited("w60"), convey.ShouldBeFalse)
		})

		convey.Convey("Then a nil record reads as null", func() {
			var none *model.AthleteRecord
			convey.So(none.Field("w60").IsNull(), convey.ShouldBeTrue)
		})
	})
}

func TestFormat(t *testing.T) {
	convey.Convey("Given the column formats", t, func() {
		convey.So(model.FormatWatts.Render(model.Num(312.4)), convey.ShouldEqual, "312 W")
		convey.So(model.FormatWKG.Render(model.Num(4.26)), convey.ShouldEqual, "4.3 w/kg")
		convey.So(model.FormatTwoDecimal.Render(model.Num(1.005)), convey.ShouldStartWith, "1.0")
		convey.So(model.FormatPercent.Render(model.Num(0.25)), convey.ShouldEqual, "25%")
		convey.So(model.FormatInteger.Render(model.Num(3)), convey.ShouldEqual, "3")
		convey.So(model.FormatText.Render(model.Str("Alpha")), convey.ShouldEqual, "Alpha")
		convey.So(model.FormatWatts.Render(model.Null), convey.ShouldEqual, "-")
		convey.So(model.Format("bogus").Valid(), convey.ShouldBeFalse)
		convey.So(model.FormatText.IsText(), convey.ShouldBeTrue)
	})
}
