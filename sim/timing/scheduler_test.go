package timing

import (
	"bytes"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/fifosim/sim/hooking"
)

type hookPosMatcher struct {
	pos *hooking.HookPos
}

func (m hookPosMatcher) Matches(x any) bool {
	ctx, ok := x.(hooking.HookCtx)
	return ok && ctx.Pos == m.pos
}

func (m hookPosMatcher) String() string {
	return "hook at " + m.pos.Name
}

func atPos(pos *hooking.HookPos) gomock.Matcher {
	return hookPosMatcher{pos: pos}
}

var _ = Describe("Scheduler", func() {
	var (
		s   *Scheduler
		log []string
	)

	record := func(p *Process, what string) {
		log = append(log, fmt.Sprintf("%s:%s@%s", p.Name(), what, p.Now()))
	}

	BeforeEach(func() {
		s = NewScheduler()
		log = nil
	})

	AfterEach(func() {
		s.Close()
	})

	It("should return immediately without processes", func() {
		Expect(s.Run()).To(Succeed())
		Expect(s.Now()).To(Equal(VTime(0)))
	})

	It("should run initial processes in spawn order", func() {
		for _, name := range []string{"A", "B", "C"} {
			s.Spawn(NewProcess(name, func(p *Process) error {
				record(p, "run")
				return nil
			}))
		}

		Expect(s.Run()).To(Succeed())

		Expect(log).To(Equal([]string{"A:run@0 s", "B:run@0 s", "C:run@0 s"}))
		Expect(s.Suspended()).To(BeEmpty())
	})

	It("should advance time to the earliest wakeup", func() {
		s.Spawn(NewProcess("Slow", func(p *Process) error {
			Expect(p.Delay(30 * NS)).To(Succeed())
			record(p, "wake")
			return nil
		}))
		s.Spawn(NewProcess("Fast", func(p *Process) error {
			Expect(p.Delay(10 * NS)).To(Succeed())
			record(p, "wake")
			Expect(p.Delay(10 * NS)).To(Succeed())
			record(p, "wake")
			return nil
		}))

		Expect(s.Run()).To(Succeed())

		Expect(log).To(Equal([]string{
			"Fast:wake@10 ns",
			"Fast:wake@20 ns",
			"Slow:wake@30 ns",
		}))
		Expect(s.Now()).To(Equal(30 * NS))
	})

	It("should wake same-time delays in request order", func() {
		for _, name := range []string{"A", "B", "C"} {
			s.Spawn(NewProcess(name, func(p *Process) error {
				Expect(p.Delay(5 * NS)).To(Succeed())
				record(p, "wake")
				return nil
			}))
		}

		Expect(s.Run()).To(Succeed())

		Expect(log).To(Equal([]string{
			"A:wake@5 ns", "B:wake@5 ns", "C:wake@5 ns",
		}))
	})

	It("should finish the delta cycle before advancing time", func() {
		evt := s.NewEvent("Evt")

		s.Spawn(NewProcess("Notifier", func(p *Process) error {
			Expect(p.Delay(10 * NS)).To(Succeed())
			evt.Notify()
			record(p, "notify")
			return nil
		}))
		s.Spawn(NewProcess("Yielder", func(p *Process) error {
			Expect(p.Delay(10 * NS)).To(Succeed())
			Expect(p.Delay(0)).To(Succeed())
			record(p, "yield")
			return nil
		}))
		s.Spawn(NewProcess("Waiter", func(p *Process) error {
			p.WaitFor(evt)
			record(p, "notified")
			return nil
		}))
		s.Spawn(NewProcess("Later", func(p *Process) error {
			Expect(p.Delay(11 * NS)).To(Succeed())
			record(p, "wake")
			return nil
		}))

		Expect(s.Run()).To(Succeed())

		Expect(log).To(Equal([]string{
			"Notifier:notify@10 ns",
			"Waiter:notified@10 ns",
			"Yielder:yield@10 ns",
			"Later:wake@11 ns",
		}))
	})

	It("should not remember past notifications", func() {
		evt := s.NewEvent("Evt")

		s.Spawn(NewProcess("Notifier", func(p *Process) error {
			evt.Notify()
			return nil
		}))
		s.Spawn(NewProcess("LateWaiter", func(p *Process) error {
			p.WaitFor(evt)
			record(p, "notified")
			return nil
		}))

		Expect(s.Run()).To(Succeed())

		Expect(log).To(BeEmpty())
		stuck := s.Suspended()
		Expect(stuck).To(HaveLen(1))
		Expect(stuck[0].Name()).To(Equal("LateWaiter"))
		Expect(stuck[0].State()).To(Equal(ProcessWaitingEvent))
		Expect(stuck[0].WaitingOn()).To(BeIdenticalTo(evt))
	})

	It("should wake every waiter in wait order", func() {
		evt := s.NewEvent("Evt")

		for _, name := range []string{"W1", "W2", "W3"} {
			s.Spawn(NewProcess(name, func(p *Process) error {
				p.WaitFor(evt)
				record(p, "notified")
				return nil
			}))
		}
		s.Spawn(NewProcess("Notifier", func(p *Process) error {
			Expect(evt.NumWaiters()).To(Equal(3))
			evt.Notify()
			Expect(evt.NumWaiters()).To(Equal(0))
			return nil
		}))

		Expect(s.Run()).To(Succeed())

		Expect(log).To(Equal([]string{
			"W1:notified@0 s", "W2:notified@0 s", "W3:notified@0 s",
		}))
	})

	It("should reject negative delays", func() {
		s.Spawn(NewProcess("Bad", func(p *Process) error {
			return p.Delay(-1 * NS)
		}))

		err := s.Run()

		var configErr *ConfigError
		Expect(errors.As(err, &configErr)).To(BeTrue())
		Expect(configErr.Field).To(Equal("delay"))
		Expect(err.Error()).To(ContainSubstring("Bad"))
	})

	It("should stop after the current delta cycle drains", func() {
		evt := s.NewEvent("Evt")

		s.Spawn(NewProcess("Ticker", func(p *Process) error {
			for {
				if err := p.Delay(1 * NS); err != nil {
					return err
				}
			}
		}))
		s.Spawn(NewProcess("Stopper", func(p *Process) error {
			Expect(p.Delay(5 * NS)).To(Succeed())
			s.RequestStop()
			evt.Notify()
			return nil
		}))
		s.Spawn(NewProcess("Waiter", func(p *Process) error {
			p.WaitFor(evt)
			record(p, "notified")
			return nil
		}))

		Expect(s.Run()).To(Succeed())

		Expect(s.Now()).To(Equal(5 * NS))
		Expect(log).To(Equal([]string{"Waiter:notified@5 ns"}))
		Expect(s.ProcessByName("Ticker").State()).To(Equal(ProcessWaitingTime))
		Expect(s.ProcessByName("Ticker").WakeAt()).To(Equal(6 * NS))
	})

	It("should continue after a stop when run again", func() {
		s.Spawn(NewProcess("Worker", func(p *Process) error {
			Expect(p.Delay(5 * NS)).To(Succeed())
			s.RequestStop()
			Expect(p.Delay(5 * NS)).To(Succeed())
			record(p, "done")
			return nil
		}))

		Expect(s.Run()).To(Succeed())
		Expect(s.Now()).To(Equal(5 * NS))

		Expect(s.Run()).To(Succeed())
		Expect(s.Now()).To(Equal(10 * NS))
		Expect(log).To(Equal([]string{"Worker:done@10 ns"}))
	})

	It("should spawn processes from a running process", func() {
		s.Spawn(NewProcess("Parent", func(p *Process) error {
			Expect(p.Delay(2 * NS)).To(Succeed())
			s.Spawn(NewProcess("Child", func(c *Process) error {
				record(c, "run")
				return nil
			}))
			record(p, "spawned")
			return nil
		}))

		Expect(s.Run()).To(Succeed())

		Expect(log).To(Equal([]string{"Parent:spawned@2 ns", "Child:run@2 ns"}))
	})

	It("should panic on duplicated process names", func() {
		body := func(p *Process) error { return nil }
		s.Spawn(NewProcess("P", body))

		Expect(func() { s.Spawn(NewProcess("P", body)) }).To(Panic())
	})

	It("should re-raise panics from a process", func() {
		s.Spawn(NewProcess("Broken", func(p *Process) error {
			panic(InvariantViolation{Where: "test", What: "broken"})
		}))

		Expect(func() { _ = s.Run() }).
			To(PanicWith(BeAssignableToTypeOf(InvariantViolation{})))
	})

	It("should panic when waiting outside a process", func() {
		evt := s.NewEvent("Evt")

		Expect(func() { s.WaitFor(evt) }).
			To(PanicWith(BeAssignableToTypeOf(InvariantViolation{})))
	})

	It("should count delta cycles", func() {
		s.Spawn(NewProcess("P", func(p *Process) error {
			Expect(p.Delay(0)).To(Succeed())
			Expect(p.Delay(1 * NS)).To(Succeed())
			return nil
		}))

		Expect(s.Run()).To(Succeed())

		Expect(s.DeltaCycles()).To(Equal(uint64(2)))
	})

	It("should terminate suspended processes on close", func() {
		cleanedUp := false
		evt := s.NewEvent("Never")

		s.Spawn(NewProcess("Stuck", func(p *Process) error {
			defer func() { cleanedUp = true }()
			p.WaitFor(evt)
			return nil
		}))

		Expect(s.Run()).To(Succeed())
		Expect(s.Suspended()).To(HaveLen(1))

		s.Spawn(NewProcess("NeverRun", func(p *Process) error {
			return nil
		}))
		s.Close()

		Expect(cleanedUp).To(BeTrue())
		for _, p := range s.Processes() {
			Expect(p.State()).To(Equal(ProcessTerminated))
		}
	})

	It("should hold dispatching while paused", func() {
		s.Spawn(NewProcess("P", func(p *Process) error {
			for i := 0; i < 3; i++ {
				if err := p.Delay(1 * NS); err != nil {
					return err
				}
			}
			return nil
		}))

		s.Pause()

		done := make(chan error)
		go func() {
			done <- s.Run()
		}()

		Consistently(done).ShouldNot(Receive())

		var now VTime
		s.Inspect(func() { now = s.Now() })
		Expect(now).To(Equal(VTime(0)))

		s.Continue()

		Eventually(done).Should(Receive(BeNil()))
		Expect(s.Now()).To(Equal(3 * NS))
	})

	It("should invoke hooks around dispatches and advances", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		hook := NewMockHook(mockCtrl)
		s.AcceptHook(hook)

		gomock.InOrder(
			hook.EXPECT().Func(atPos(HookPosBeforeProcess)),
			hook.EXPECT().Func(atPos(HookPosAfterProcess)),
			hook.EXPECT().Func(atPos(HookPosTimeAdvance)).
				Do(func(ctx hooking.HookCtx) {
					Expect(ctx.Item).To(Equal(4 * NS))
				}),
			hook.EXPECT().Func(atPos(HookPosBeforeProcess)),
			hook.EXPECT().Func(atPos(HookPosAfterProcess)),
		)

		s.Spawn(NewProcess("P", func(p *Process) error {
			return p.Delay(4 * NS)
		}))

		Expect(s.Run()).To(Succeed())
	})
})

var _ = Describe("Signal", func() {
	var s *Scheduler

	BeforeEach(func() {
		s = NewScheduler()
	})

	AfterEach(func() {
		s.Close()
	})

	It("should notify only on change", func() {
		sig := NewSignal(s, "Done", false)
		wakeups := 0

		s.Spawn(NewProcess("Watcher", func(p *Process) error {
			for !sig.Read() {
				p.WaitFor(sig.ValueChangedEvent())
				wakeups++
			}
			return nil
		}))
		s.Spawn(NewProcess("Writer", func(p *Process) error {
			Expect(p.Delay(1 * NS)).To(Succeed())
			sig.Write(false)
			Expect(p.Delay(1 * NS)).To(Succeed())
			sig.Write(true)
			return nil
		}))

		Expect(s.Run()).To(Succeed())

		Expect(wakeups).To(Equal(1))
		Expect(sig.Read()).To(BeTrue())
		Expect(s.ProcessByName("Watcher").State()).To(Equal(ProcessTerminated))
	})
})

var _ = Describe("ProcessLogger", func() {
	It("should log dispatches", func() {
		buf := new(bytes.Buffer)
		logger := zerolog.New(buf).Level(zerolog.DebugLevel)

		s := NewScheduler()
		defer s.Close()

		s.AcceptHook(NewProcessLogger(logger))
		s.Spawn(NewProcess("Greeter", func(p *Process) error {
			return p.Delay(3 * NS)
		}))

		Expect(s.Run()).To(Succeed())

		out := buf.String()
		Expect(out).To(ContainSubstring(`"process":"Greeter"`))
		Expect(out).To(ContainSubstring(`"message":"resume"`))
		Expect(out).To(ContainSubstring(`"time":"3 ns"`))
		Expect(out).To(ContainSubstring(`"state":"terminated"`))
	})
})
