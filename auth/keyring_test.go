package auth

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/zalando/go-keyring"
)

func TestKeyring(t *testing.T) {
	Convey("Given a mock keyring", t, func() {
		keyring.MockInit()

		Convey("A missing token reads as empty", func() {
			token, err := Token("ws://mass.local:8095")
			So(err, ShouldBeNil)
			So(token, ShouldBeEmpty)
		})

		Convey("Tokens are kept per server host", func() {
			So(SetToken("ws://mass.local:8095", "abc"), ShouldBeNil)

			token, err := Token("wss://mass.local:8095/ws")
			So(err, ShouldBeNil)
			So(token, ShouldEqual, "abc")

			other, err := Token("ws://other:8095")
			So(err, ShouldBeNil)
			So(other, ShouldBeEmpty)

			Convey("And can be deleted twice", func() {
				So(DeleteToken("ws://mass.local:8095"), ShouldBeNil)
				So(DeleteToken("ws://mass.local:8095"), ShouldBeNil)
				So(Resolve("ws://mass.local:8095", ""), ShouldBeEmpty)
			})
		})

		Convey("A configured token wins over the keyring", func() {
			So(SetToken("ws://mass.local:8095", "stored"), ShouldBeNil)
			So(Resolve("ws://mass.local:8095", "configured"), ShouldEqual, "configured")
			So(Resolve("ws://mass.local:8095", ""), ShouldEqual, "stored")
			So(Resolve("", ""), ShouldBeEmpty)
		})
	})
}
