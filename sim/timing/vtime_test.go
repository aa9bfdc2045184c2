package timing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = DescribeTable("VTime.String",
	func(t VTime, expected string) {
		Expect(t.String()).To(Equal(expected))
	},
	Entry("zero", VTime(0), "0 s"),
	Entry("picoseconds", 7*PS, "7 ps"),
	Entry("nanoseconds", 1100*NS, "1100 ns"),
	Entry("microseconds", 2*US, "2 us"),
	Entry("seconds", 3*Sec, "3 s"),
	Entry("negative", -5*NS, "-5 ns"),
)
