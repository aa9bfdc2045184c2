package queueing_test

import (
	"errors"
	"fmt"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/fifosim/sim/hooking"
	"github.com/sarchlab/fifosim/sim/queueing"
	"github.com/sarchlab/fifosim/sim/timing"
)

type channelOp struct {
	pos       *hooking.HookPos
	value     int
	occupancy int
}

var _ = Describe("Channel", func() {
	var (
		s   *timing.Scheduler
		ops []channelOp
	)

	build := func(capacity int) *queueing.Channel[int] {
		c, err := queueing.MakeChannelBuilder[int]().
			WithScheduler(s).
			WithCapacity(capacity).
			Build("Chan")
		Expect(err).NotTo(HaveOccurred())

		c.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			ops = append(ops, channelOp{
				pos:       ctx.Pos,
				value:     ctx.Item.(int),
				occupancy: ctx.Detail.(int),
			})
		}))

		return c
	}

	readValues := func() []int {
		var values []int
		for _, op := range ops {
			if op.pos == queueing.HookPosChannelRead {
				values = append(values, op.value)
			}
		}
		return values
	}

	BeforeEach(func() {
		s = timing.NewScheduler()
		ops = nil
	})

	AfterEach(func() {
		s.Close()
	})

	It("should reject a capacity below one", func() {
		_, err := queueing.MakeChannelBuilder[int]().
			WithScheduler(s).
			WithCapacity(0).
			Build("Chan")

		var configErr *timing.ConfigError
		Expect(errors.As(err, &configErr)).To(BeTrue())
		Expect(configErr.Field).To(Equal("capacity"))
	})

	It("should require a scheduler", func() {
		_, err := queueing.MakeChannelBuilder[int]().Build("Chan")

		Expect(err).To(HaveOccurred())
	})

	It("should answer queries", func() {
		c := build(2)

		Expect(c.Name()).To(Equal("Chan"))
		Expect(c.Capacity()).To(Equal(2))
		Expect(c.IsEmpty()).To(BeTrue())
		Expect(c.IsFull()).To(BeFalse())

		s.Spawn(timing.NewProcess("Writer", func(p *timing.Process) error {
			c.Write(1)
			c.Write(2)
			return nil
		}))
		Expect(s.Run()).To(Succeed())

		Expect(c.Size()).To(Equal(2))
		Expect(c.IsFull()).To(BeTrue())
		Expect(c.IsEmpty()).To(BeFalse())
	})

	It("should keep FIFO order across bursts", func() {
		c := build(2)

		s.Spawn(timing.NewProcess("Writer", func(p *timing.Process) error {
			for _, burst := range []int{3, 2} {
				for i := 1; i <= burst; i++ {
					c.Write(i)
				}
				if err := p.Delay(10 * timing.NS); err != nil {
					return err
				}
			}
			return nil
		}))
		s.Spawn(timing.NewProcess("Reader", func(p *timing.Process) error {
			for {
				c.Read()
				if err := p.Delay(1 * timing.NS); err != nil {
					return err
				}
			}
		}))

		Expect(s.Run()).To(Succeed())

		Expect(readValues()).To(Equal([]int{1, 2, 3, 1, 2}))
		Expect(c.Stats().Reads).To(Equal(uint64(5)))
		Expect(c.Stats().Writes).To(Equal(uint64(5)))
	})

	It("should alternate writes and reads with capacity one", func() {
		c := build(1)

		s.Spawn(timing.NewProcess("Writer", func(p *timing.Process) error {
			for i := 0; i < 6; i++ {
				c.Write(i)
			}
			return nil
		}))
		s.Spawn(timing.NewProcess("Reader", func(p *timing.Process) error {
			for i := 0; i < 6; i++ {
				c.Read()
				if err := p.Delay(3 * timing.NS); err != nil {
					return err
				}
			}
			return nil
		}))

		Expect(s.Run()).To(Succeed())

		Expect(ops).To(HaveLen(12))
		for i, op := range ops {
			if i%2 == 0 {
				Expect(op.pos).To(Equal(queueing.HookPosChannelWrite))
			} else {
				Expect(op.pos).To(Equal(queueing.HookPosChannelRead))
			}
			Expect(op.value).To(Equal(i / 2))
		}
		Expect(c.Stats().MaxOccupancy).To(Equal(1))
	})

	It("should compute exact statistics for one burst", func() {
		c := build(10)

		s.Spawn(timing.NewProcess("Writer", func(p *timing.Process) error {
			for i := 1; i <= 5; i++ {
				c.Write(i)
			}
			return nil
		}))
		s.Spawn(timing.NewProcess("Reader", func(p *timing.Process) error {
			for {
				c.Read()
				if err := p.Delay(1 * timing.NS); err != nil {
					return err
				}
			}
		}))

		Expect(s.Run()).To(Succeed())

		stats := c.Stats()
		Expect(stats.Reads).To(Equal(uint64(5)))
		Expect(stats.OccupancySum).To(Equal(uint64(5 + 4 + 3 + 2 + 1)))
		Expect(stats.AverageOccupancy()).To(Equal(3.0))
		Expect(stats.LastReadTime).To(Equal(4 * timing.NS))
		Expect(stats.AverageReadInterval()).To(Equal(800 * timing.PS))
		Expect(stats.MaxOccupancy).To(Equal(5))

		report := c.Report()
		Expect(report.Capacity).To(Equal(10))
		Expect(report.TotalReads).To(Equal(uint64(5)))
		Expect(report.TotalTime).To(Equal(4 * timing.NS))
		Expect(report.String()).To(ContainSubstring("Total items transferred: 5"))
		Expect(report.String()).To(ContainSubstring("Average transfer time per item: 800 ps"))
	})

	It("should report zeros before any read", func() {
		c := build(3)

		report := c.Report()

		Expect(report.AverageOccupancy).To(Equal(0.0))
		Expect(report.AverageReadInterval).To(Equal(timing.VTime(0)))
		Expect(report.TotalReads).To(Equal(uint64(0)))
	})

	It("should block the writer until a read frees a slot", func() {
		c := build(2)
		var writeTimes []timing.VTime

		s.Spawn(timing.NewProcess("Writer", func(p *timing.Process) error {
			for i := 0; i < 3; i++ {
				c.Write(i)
				writeTimes = append(writeTimes, p.Now())
			}
			return nil
		}))
		s.Spawn(timing.NewProcess("Reader", func(p *timing.Process) error {
			if err := p.Delay(7 * timing.NS); err != nil {
				return err
			}
			c.Read()
			return nil
		}))

		Expect(s.Run()).To(Succeed())

		Expect(writeTimes).To(Equal([]timing.VTime{0, 0, 7 * timing.NS}))
		Expect(c.Size()).To(Equal(2))
	})

	It("should leave a reader stuck on an empty channel at quiescence", func() {
		c := build(2)

		s.Spawn(timing.NewProcess("Reader", func(p *timing.Process) error {
			c.Read()
			return nil
		}))

		Expect(s.Run()).To(Succeed())

		stuck := s.Suspended()
		Expect(stuck).To(HaveLen(1))
		Expect(stuck[0].WaitingOn().Name()).To(Equal("Chan.NotEmpty"))
		Expect(c.Stats().Reads).To(BeZero())
	})

	It("should reset contents but keep statistics", func() {
		c := build(3)

		s.Spawn(timing.NewProcess("Worker", func(p *timing.Process) error {
			c.Write(1)
			c.Write(2)
			c.Read()
			c.Write(3)
			c.Reset()
			c.Write(4)
			return nil
		}))

		Expect(s.Run()).To(Succeed())

		Expect(c.Size()).To(Equal(1))
		Expect(c.Stats().Reads).To(Equal(uint64(1)))
		Expect(c.Stats().OccupancySum).To(Equal(uint64(2)))

		var got int
		s.Spawn(timing.NewProcess("Reader", func(p *timing.Process) error {
			got = c.Read()
			return nil
		}))
		Expect(s.Run()).To(Succeed())
		Expect(got).To(Equal(4))
	})

	It("should wake a blocked writer on reset", func() {
		c := build(1)
		written := 0

		s.Spawn(timing.NewProcess("Writer", func(p *timing.Process) error {
			c.Write(1)
			c.Write(2)
			written = 2
			return nil
		}))
		s.Spawn(timing.NewProcess("Admin", func(p *timing.Process) error {
			if err := p.Delay(1 * timing.NS); err != nil {
				return err
			}
			c.Reset()
			return nil
		}))

		Expect(s.Run()).To(Succeed())

		Expect(written).To(Equal(2))
		Expect(c.Size()).To(Equal(1))
	})

	It("should panic when blocking outside of a process", func() {
		c := build(1)

		Expect(func() { c.Read() }).
			To(PanicWith(BeAssignableToTypeOf(timing.InvariantViolation{})))
	})

	DescribeTable("should move every item in order within bounds",
		func(capacity, total int, seed int64) {
			c := build(capacity)
			rng := rand.New(rand.NewSource(seed))

			s.Spawn(timing.NewProcess("Writer", func(p *timing.Process) error {
				next := 0
				for next < total {
					burst := 1 + rng.Intn(19)
					for i := 0; i < burst && next < total; i++ {
						c.Write(next)
						next++
					}
					if err := p.Delay(timing.VTime(rng.Intn(50)) * timing.NS); err != nil {
						return err
					}
				}
				return nil
			}))
			s.Spawn(timing.NewProcess("Reader", func(p *timing.Process) error {
				for {
					c.Read()
					if err := p.Delay(timing.VTime(rng.Intn(5)) * timing.NS); err != nil {
						return err
					}
				}
			}))

			Expect(s.Run()).To(Succeed())

			values := readValues()
			Expect(values).To(HaveLen(total))
			for i, v := range values {
				Expect(v).To(Equal(i), fmt.Sprintf("item %d", i))
			}
			for _, op := range ops {
				Expect(op.occupancy).To(BeNumerically(">=", 0))
				Expect(op.occupancy).To(BeNumerically("<=", capacity))
			}
			Expect(c.Stats().Reads).To(Equal(uint64(total)))
		},
		Entry("capacity 1", 1, 200, int64(1)),
		Entry("capacity 3", 3, 500, int64(2)),
		Entry("capacity 10", 10, 1000, int64(3)),
		Entry("capacity 64", 64, 1000, int64(4)),
	)
})
