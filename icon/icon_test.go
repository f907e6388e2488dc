package icon

import (
	"testing"

	"github.com/massdroid-cli/massd/key"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/spf13/viper"
)

func TestGet(t *testing.T) {
	Convey("Given a registered icon", t, func() {
		target := Resume

		Convey("It renders for each visible variant", func() {
			for _, variant := range []string{emoji, nerd, plain} {
				Convey("variant="+variant, func() {
					viper.Set(key.CliIcons, variant)
					So(Get(target), ShouldNotBeEmpty)
					So(Prefix(target), ShouldEndWith, " ")
				})
			}
		})

		Convey("It renders nothing when icons are off", func() {
			viper.Set(key.CliIcons, none)
			So(Get(target), ShouldBeEmpty)
			So(Prefix(target), ShouldBeEmpty)
		})

		Convey("Plain icons are ascii", func() {
			viper.Set(key.CliIcons, plain)
			So(Get(Fail), ShouldEqual, "x")
		})
	})
}
